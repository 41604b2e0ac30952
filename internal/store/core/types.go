package core

import "time"

// EicFunction identifica la función de un market role (códigos EIC).
type EicFunction string

const (
	// FunctionGridAccessProvider es la función distinguida: solo los roles con
	// esta función aportan grid areas al token emitido.
	FunctionGridAccessProvider EicFunction = "GridAccessProvider"

	FunctionBalanceResponsibleParty EicFunction = "BalanceResponsibleParty"
	FunctionEnergySupplier          EicFunction = "EnergySupplier"
	FunctionMeteredDataResponsible  EicFunction = "MeteredDataResponsible"
	FunctionSystemOperator          EicFunction = "SystemOperator"
)

// MarketRole es un rol de mercado asignado a un actor. GridAreaCodes solo
// aplica cuando la función lo requiere (puede ser nil).
type MarketRole struct {
	Function      EicFunction
	GridAreaCodes []string
}

// ActorTokenData es lo que el minter necesita saber del actor destino.
type ActorTokenData struct {
	ActorID     string
	ActorNumber string
	MarketRoles []MarketRole
}

// PermissionGrant resuelve (sujeto externo, actor) a la identidad interna
// y sus permisos efectivos sobre ese actor.
type PermissionGrant struct {
	UserID          string // id interno del usuario
	IsFas           bool   // full access scope: no restringido a un actor
	PermissionCodes []string
}

// SigningKey es una versión de la clave de firma del servicio.
// PrivateKeyPEM puede ser nil cuando la fila se leyó solo para publicación.
type SigningKey struct {
	KeyName       string
	VersionID     string // el "kid" publicado es su último segmento de path
	PublicKeyPEM  []byte
	PrivateKeyPEM []byte
	Enabled       bool
	IsCurrent     bool
	CreatedAt     time.Time
}

// DownloadTicket encapsula un header Authorization detrás de un
// identificador opaco de un solo uso.
type DownloadTicket struct {
	ID            string
	Authorization string
	CreatedAt     time.Time
	Consumed      bool
}
