// migrations содержит встраиваемые SQL-миграции схемы хранилища токенов.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
