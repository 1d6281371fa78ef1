// Package logger provides structured logging for framepipe using zerolog.
//
// It supports JSON and console output, level configuration, component-scoped
// loggers and run-scoped loggers that carry the pipeline run id and the
// active trace/span ids.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//
// # Usage
//
//	log := logger.Get("extractor").WithContext(ctx)
//	log.Info("frame extracted", logger.Fields("seq", 12))
package logger
