package logger

import "go.uber.org/zap"

// ---- HTTP ----

// RequestID crea un campo para el ID del request.
func RequestID(v string) zap.Field { return zap.String("request_id", v) }

// Method crea un campo para el método HTTP.
func Method(v string) zap.Field { return zap.String("method", v) }

// Path crea un campo para el path del request.
func Path(v string) zap.Field { return zap.String("path", v) }

// Status crea un campo para el status code HTTP.
func Status(v int) zap.Field { return zap.Int("status", v) }

// Bytes crea un campo para los bytes de respuesta.
func Bytes(v int) zap.Field { return zap.Int("bytes", v) }

// DurationMs crea un campo para la duración en milisegundos.
func DurationMs(v int64) zap.Field { return zap.Int64("duration_ms", v) }

// Addr crea un campo para una dirección de escucha.
func Addr(v string) zap.Field { return zap.String("addr", v) }

// ---- Negocio ----

// UserID crea un campo para el id interno del usuario.
func UserID(v string) zap.Field { return zap.String("user_id", v) }

// ActorID crea un campo para el id del actor autorizado.
func ActorID(v string) zap.Field { return zap.String("actor_id", v) }

// KID crea un campo para el key id de firma.
func KID(v string) zap.Field { return zap.String("kid", v) }

// KeyName crea un campo para el nombre lógico de la clave.
func KeyName(v string) zap.Field { return zap.String("key_name", v) }

// ---- Genéricos ----

// Op crea un campo para la operación en curso.
func Op(v string) zap.Field { return zap.String("op", v) }

// Err crea un campo para un error.
func Err(err error) zap.Field { return zap.Error(err) }

// Any crea un campo arbitrario.
func Any(key string, v any) zap.Field { return zap.Any(key, v) }
