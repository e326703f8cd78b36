package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/farmgate/farmgate/internal/migration"
	"github.com/farmgate/farmgate/internal/server"
	"github.com/farmgate/farmgate/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		fx.Provide(RegisterSnowflake),
		db.Module,
		server.Module,
		migration.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
