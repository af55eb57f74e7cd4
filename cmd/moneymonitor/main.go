// Command moneymonitor は資産推移トラッカーのAPIサーバー・ワーカー・マイグレーションを起動する。
//
//	moneymonitor [serve|worker|migrate|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/moneymonitor/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "moneymonitor: %v\n", err)
		os.Exit(1)
	}
}
