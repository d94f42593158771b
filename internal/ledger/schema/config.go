package schema

// Well-known config keys.
const (
	ConfigCategorias         = "categorias"
	ConfigContas             = "contas"
	ConfigContasInvestimento = "contasInvestimento"
	ConfigLastSyncedAt       = "lastSyncedAt"
	ConfigAuthToken          = "authToken"
)

// ConfigLists are the list-valued config keys exchanged during sync.
var ConfigLists = []string{
	ConfigCategorias,
	ConfigContas,
	ConfigContasInvestimento,
}

// ParseList decodes a stored config value as a JSON list. Absent or
// unparsable values yield an empty list.
func ParseList(raw *string) List {
	if raw == nil {
		return List{}
	}
	v, err := ParseValue([]byte(*raw))
	if err != nil {
		return List{}
	}
	list, ok := v.(List)
	if !ok {
		return List{}
	}
	return list
}

// EncodeValue returns the JSON text stored for a config value.
func EncodeValue(v Value) (string, error) {
	data, err := MarshalValue(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// StringList converts a List of strings to []string, skipping
// non-string items.
func StringList(l List) []string {
	out := make([]string, 0, len(l))
	for _, v := range l {
		if s, ok := v.(String); ok {
			out = append(out, string(s))
		}
	}
	return out
}

// ListOf builds a List of strings.
func ListOf(items ...string) List {
	l := make(List, len(items))
	for i, s := range items {
		l[i] = String(s)
	}
	return l
}
