// Package logging builds the server's zap logger.
//
// Production mode writes JSON lines; development mode writes colored console
// output. Components receive the embedded *zap.Logger and derive named
// children from it.
//
//	logger, err := logging.New(logging.Config{Level: "info"})
//	logger.Info("server starting", zap.String("addr", ":8000"))
package logging
