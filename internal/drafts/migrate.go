package drafts

import "sympto/internal/models"

// Migration rewrites a draft persisted by an older client. Migrations must be pure and
// idempotent; they run in order on every load.
type Migration struct {
	Version int
	Name    string
	Apply   func(models.Draft) models.Draft
}

// Migrations is append-only: a new placeholder convention gets a new entry.
var Migrations = []Migration{
	{Version: 1, Name: "lab zero placeholder", Apply: SanitizeLegacy},
}

// SanitizeLegacy treats a lab value of exactly zero as not provided. Older clients stored 0 as
// the empty value for lab results, and 0 is outside every lab range.
func SanitizeLegacy(d models.Draft) models.Draft {
	out := d.Clone()
	for _, f := range models.LabFields {
		if v, ok := out.Get(f); ok && v == 0 {
			_ = out.Clear(f)
		}
	}
	return out
}

func migrate(d models.Draft) models.Draft {
	for _, m := range Migrations {
		d = m.Apply(d)
	}
	return d
}
