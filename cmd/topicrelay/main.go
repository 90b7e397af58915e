// Command topicrelay runs the support relay bot.
package main

import (
	"log"

	"github.com/m3rciful/topicrelay/core/cmd"
	"github.com/m3rciful/topicrelay/internal/app"
)

func main() {
	err := cmd.Run(cmd.Options{
		EnvFiles:          []string{".env"},
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (cmd.ConfigCarrier, error) {
			return app.LoadConfig(path)
		},
		Bootstrap: app.Bootstrap,
	})
	if err != nil {
		log.Fatal(err)
	}
}
