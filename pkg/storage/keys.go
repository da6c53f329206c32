package storage

func identityKey(kind, value string) string {
	if kind == "" {
		return ""
	}
	return kind + "|" + value
}
