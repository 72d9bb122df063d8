package config

// Backend persists the non-secret settings written by `formcat config set`.
// Values are addressed by their dotted key, e.g. "server.port". Secrets
// never pass through a Backend; they go to the keychain.
type Backend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}
