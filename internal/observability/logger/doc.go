// Package logger provee un logger estructurado (zap) como singleton,
// con propagación por contexto y helpers de campos estándar.
//
// Uso típico:
//
//	logger.Init(logger.Config{Env: "prod", Level: "info", ServiceName: "marketauth"})
//	defer logger.Sync()
//
//	logger.L().Info("server started", logger.Addr(":8080"))
//
// En handlers, preferir el logger del contexto (inyectado por el middleware
// de logging):
//
//	logger.From(ctx).Warn("mint rejected", logger.ActorID(actorID))
package logger
