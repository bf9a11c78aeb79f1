// circlectl — инструмент командной строки CIRCLE.
//
// Использование:
//
//	circlectl [--api-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	instance  Развёртывание и уничтожение VM
//	task      Каталог задач и состояние вызовов
//	topology  Exchanges и очереди брокеров
package main

import (
	"fmt"
	"os"

	"github.com/shaiso/circle/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	if err := cli.NewRootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
