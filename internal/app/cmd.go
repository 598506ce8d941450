package app

import (
	"fmt"
	"strconv"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	CommandServe   Command = "serve"
	CommandWorker  Command = "worker"
	CommandMigrate Command = "migrate"
	// CommandCleanup は放置カートの削除を1回だけ実行する。cronからの起動用。
	CommandCleanup Command = "cleanup"
	// CommandHealthcheck はdistroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// MigrateAction はmigrateサブコマンドの操作。
type MigrateAction string

const (
	MigrateUp     MigrateAction = "up"
	MigrateDown   MigrateAction = "down"
	MigrateStatus MigrateAction = "status"
)

// Invocation は解析済みのコマンドライン。
type Invocation struct {
	Command Command
	Migrate MigrateAction
	// Steps はmigrate downで戻すバージョン数。
	Steps int
}

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空の場合はserveとなり、未知のサブコマンドはエラーとなる。
func ParseCommand(args []string) (Invocation, error) {
	if len(args) == 0 {
		return Invocation{Command: CommandServe}, nil
	}

	switch cmd := Command(args[0]); cmd {
	case CommandServe, CommandWorker, CommandCleanup, CommandHealthcheck:
		return Invocation{Command: cmd}, nil
	case CommandMigrate:
		return parseMigrateArgs(args[1:])
	default:
		return Invocation{}, fmt.Errorf("unknown command %q (serve, worker, migrate, cleanup, healthcheck)", args[0])
	}
}

// parseMigrateArgs は migrate [up | down [N] | status] を解析する。
func parseMigrateArgs(args []string) (Invocation, error) {
	inv := Invocation{Command: CommandMigrate, Migrate: MigrateUp}
	if len(args) == 0 {
		return inv, nil
	}

	switch action := MigrateAction(args[0]); action {
	case MigrateUp, MigrateStatus:
		inv.Migrate = action
	case MigrateDown:
		inv.Migrate = MigrateDown
		inv.Steps = 1
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n <= 0 {
				return Invocation{}, fmt.Errorf("invalid migrate down steps %q", args[1])
			}
			inv.Steps = n
		}
	default:
		return Invocation{}, fmt.Errorf("unknown migrate action %q (up, down, status)", args[0])
	}
	return inv, nil
}
