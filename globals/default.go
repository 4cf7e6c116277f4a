package globals

import "github.com/hashicorp/go-hclog"

var AppLogger = hclog.New(&hclog.LoggerOptions{
	Name:  "bingo-chat",
	Level: hclog.LevelFromString("INFO"),
})
