package domain

import (
	"errors"
	"fmt"
)

// Sentinelas para clasificar fallos de publicación. El Publisher solo
// reintenta los transitorios (rate-limit, 5xx); cualquier otro error se
// devuelve inmediatamente y la fila queda sin publicar para el relay.
var (
	ErrTransient = errors.New("transient publish error")
	ErrPermanent = errors.New("permanent publish error")

	// ErrUnknownEventType indica un event_type sin topic asignado.
	// Es un error de configuración, no un caso de retry.
	ErrUnknownEventType = errors.New("unknown event type: no topic mapping")
)

// WrapTransient anota un error como transitorio para que el Publisher
// lo reintente con backoff.
func WrapTransient(err error) error {
	if err == nil {
		return ErrTransient
	}
	return fmt.Errorf("%w: %v", ErrTransient, err)
}

// WrapPermanent anota un error como permanente.
func WrapPermanent(err error) error {
	if err == nil {
		return ErrPermanent
	}
	return fmt.Errorf("%w: %v", ErrPermanent, err)
}

// IsTransient decide si un fallo de publicación merece reintento.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
