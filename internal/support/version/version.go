// Package version хранит имя и версию сборки userbot. Version переопределяется
// при сборке через -ldflags "-X telegram-userbot/internal/support/version.Version=...".
package version

// Name — отображаемое имя приложения (Device.AppVersion, команда Version, веб-интерфейс).
const Name = "telegram-userbot"

// Version — версия сборки. По умолчанию "dev", если не переопределена флагами линковщика.
var Version = "dev"
