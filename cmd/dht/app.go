package dht

import (
	"fmt"
	"math/rand"
	"runtime"
	"time"

	"go.miragespace.co/dht/cmd/client"
	"go.miragespace.co/dht/cmd/server"
	"go.miragespace.co/dht/util"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	Build = "head"
)

var (
	App = cli.App{
		Name:            "dht",
		Usage:           fmt.Sprintf("build for %s on %s", runtime.GOARCH, runtime.GOOS),
		Version:         Build,
		HideHelpCommand: true,
		Description:     "a chord ring where every key holds a multiset of values",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "verbose",
				Value: false,
				Usage: "enable verbose logging",
			},
			&cli.Int64Flag{
				Name:   "rand",
				Hidden: true,
				Value:  time.Now().Unix(),
			},
		},
		Commands: []*cli.Command{
			server.Generate(),
			client.Generate(),
		},
		Before: ConfigLogger,
	}
)

func init() {
	util.PrettierHelpPrinter()
}

func ConfigLogger(ctx *cli.Context) error {
	var config zap.Config
	if ctx.Bool("verbose") {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}
	// Redirect everything to stderr
	config.OutputPaths = []string{"stderr"}
	logger, err := config.Build()
	if err != nil {
		return err
	}
	_, err = zap.RedirectStdLogAt(logger.With(zap.String("subsystem", "unknown")), zapcore.InfoLevel)
	if err != nil {
		return fmt.Errorf("redirecting stdlog output: %w", err)
	}
	if ctx.App.Metadata == nil {
		ctx.App.Metadata = map[string]interface{}{}
	}
	ctx.App.Metadata["logger"] = logger

	seed := ctx.Int64("rand")
	logger.Debug("dht: seeding math/rand", zap.Int64("rand", seed), zap.Bool("overridden", ctx.IsSet("rand")))
	rand.Seed(seed)

	return nil
}
