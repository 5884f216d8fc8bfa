package memscreen

import (
	"context"
	"time"

	"previa/internal/domain"
)

// findings keyed by RFC. Everything else screens clean.
var findings = map[string]domain.ScreeningRecord{
	"CAL080328S18": {
		Art69BFound:     true,
		Art69BStatus:    domain.Art69BDefinitive,
		Art69BNotice:    "500-39-00-02-02-2021-5221",
		Art69BAuthority: "SAT",
		Art69BMotive:    "Ausencia de Activos, Ausencia de Personal, Falta de Infraestructura, Sin Capacidad Material",
		Art69BURL:       "https://dof.gob.mx/nota_detalle.php?codigo=5629553",
		Art69Found:      true,
		Art69Categories: []domain.Art69Category{{Type: "credito_firme", Details: "Crédito fiscal firme - Operaciones inexistentes"}},
	},
	"ACA0604119X3": {
		Art69BFound:     true,
		Art69BStatus:    domain.Art69BPresumed,
		Art69BNotice:    "500-05-2021-15394",
		Art69BAuthority: "SAT",
		Art69BMotive:    "Operaciones Presuntamente Inexistentes",
		Art69BURL:       "https://www.dof.gob.mx/nota_detalle_popup.php?codigo=5629553",
	},
	"LAS191217BD4": {
		Art69BFound:     true,
		Art69BStatus:    domain.Art69BDefinitive,
		Art69BNotice:    "SAT-700-07-2024-0012",
		Art69BAuthority: "Administración Central de Fiscalización",
		Art69BMotive:    "Operaciones inexistentes confirmadas",
	},
	"BMS190313BU0": {
		Art69BFound:     true,
		Art69BStatus:    domain.Art69BPresumed,
		Art69BNotice:    "SAT-ADR-2024-0044",
		Art69BAuthority: "SAT - Administración Regional",
		Art69BMotive:    "Bajo investigación por operaciones presuntas",
	},
	"GFS1109204G1": {
		Art69Found:      true,
		Art69Categories: []domain.Art69Category{{Type: "no_localizado", Details: "Contribuyente no localizado en domicilio fiscal"}},
	},
	"BAD180409H32": {
		Art69Found:      true,
		Art69Categories: []domain.Art69Category{{Type: "credito_firme", Details: "Crédito fiscal firme pendiente de pago"}},
	},
}

// Lookup screens one entity against the fixture lists.
func Lookup(_ context.Context, in domain.EntityInput) (domain.ScreeningRecord, error) {
	rec := findings[in.RFC]
	rec.Art69Categories = append([]domain.Art69Category(nil), rec.Art69Categories...)
	rec.RFC = in.RFC
	rec.Name = in.Name
	rec.PersonType = in.PersonType
	rec.Relation = in.Relation
	now := time.Now().UTC()
	rec.ScreenedAt = &now
	return rec, nil
}
