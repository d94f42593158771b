// Package sync implements pull, push and restore between the local store
// and the remote ledger service.
//
// # Wire Contract
//
// The remote exposes a single endpoint:
//
//	GET  {base}/sync[?since=<cursor>]   -> snapshot
//	POST {base}/sync                    <- snapshot
//
// where a snapshot is
//
//	{
//	  "transacoes":  [ {transaction document}, ... ],
//	  "recorrentes": [ {recurring document}, ... ],
//	  "config": {
//	    "categorias": [...],
//	    "contas": [...],
//	    "contasInvestimento": [...]
//	  }
//	}
//
// Any non-2xx status or a body that is not JSON fails the flow.
//
// # Flows
//
//	Pull     GET with cursor, upsert every entity, overwrite config lists, stamp cursor
//	Push     read everything, POST it, stamp cursor
//	Restore  GET without cursor, clear both entity tables, apply as pull, stamp cursor
//
// Pull and Push are no-ops when no base URL is configured. Restore fails.
//
// # Conflict Policy
//
// There is none beyond overwrite. Pulled entities replace local rows with
// the same id. Push sends the full dataset including soft-deleted rows.
//
// # Usage
//
//	database, err := db.Open("vertexads.db")
//	if err != nil {
//	    return err
//	}
//	defer database.Close()
//
//	engine := sync.New(database, sync.Options{BaseURL: "https://api.example.com"})
//	if _, err := engine.Pull(ctx); err != nil {
//	    return err
//	}
package sync
