package services

import (
	"errors"
	"strings"

	"caisse/internal/core"
	"caisse/internal/sources"
)

// User-facing status strings.
const (
	MsgNetwork           = "Erreur réseau"
	MsgDeleteFailed      = "Erreur lors de la suppression"
	MsgSaveFailed        = "Erreur lors de l'enregistrement"
	MsgLoadFailed        = "Erreur lors du chargement des données"
	MsgMissingIdentifier = "Impossible de supprimer : identifiant manquant"
	MsgInvalidForm       = "Formulaire invalide"
	MsgStale             = "Données modifiées entre-temps, rechargement nécessaire"
	MsgUnexpected        = "Erreur inattendue"
)

// StatusMessage converts an error from the services into the status string
// shown to the user. It returns "" for a nil error.
func StatusMessage(err error) string {
	if err == nil {
		return ""
	}

	var verrs core.ValidationErrors
	if errors.As(err, &verrs) {
		parts := make([]string, 0, len(verrs))
		for _, v := range verrs {
			parts = append(parts, v.Field+" : "+v.Message)
		}
		return MsgInvalidForm + " (" + strings.Join(parts, ", ") + ")"
	}
	var verr *core.ValidationError
	if errors.As(err, &verr) {
		return MsgInvalidForm + " (" + verr.Field + " : " + verr.Message + ")"
	}

	switch {
	case errors.Is(err, core.ErrMissingIdentifier):
		return MsgMissingIdentifier
	case errors.Is(err, sources.ErrNetwork):
		return MsgNetwork
	case errors.Is(err, ErrStaleView):
		return MsgStale
	}

	var pe *sources.PersistenceError
	if errors.As(err, &pe) {
		switch pe.Op {
		case sources.OpDelete:
			return MsgDeleteFailed
		case sources.OpCreate, sources.OpUpdate:
			return MsgSaveFailed
		default:
			return MsgLoadFailed
		}
	}
	return MsgUnexpected
}
