package globals

import "github.com/hashicorp/go-hclog"

var AppLogger = hclog.New(&hclog.LoggerOptions{
	Name:  "tripmesh",
	Level: hclog.LevelFromString("INFO"),
})
