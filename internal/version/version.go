package version

import "fmt"

// Значения подставляются через -ldflags "-X .../internal/version.version=...".
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Info возвращает версию, коммит и дату сборки.
func Info() (v, c, d string) { return version, commit, date }

func GetVersion() string { return version }

func GetCommit() string { return commit }

func GetDate() string { return date }

// ClientID: идентификатор сервиса для внешних клиентов (Kafka, трейсинг).
func ClientID(service string) string {
	if len(commit) > 7 {
		return fmt.Sprintf("%s-%s-%s", service, version, commit[:7])
	}
	return fmt.Sprintf("%s-%s", service, version)
}

func String() string {
	return fmt.Sprintf("version=%s commit=%s date=%s", version, commit, date)
}
