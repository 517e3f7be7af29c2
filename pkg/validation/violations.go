package validation

import (
	"fmt"
	"strings"

	"github.com/Ramsey-B/bynight/pkg/models"
	"github.com/Ramsey-B/bynight/pkg/normalizers"
	"github.com/Ramsey-B/bynight/pkg/reject"
)

const (
	FieldName       = "nom"
	FieldStartDate  = "dateDebut"
	FieldDesc       = "descriptif"
	FieldPlace      = "place"
	FieldPlaceName  = "placeName"
	FieldPlaceCity  = "placeCity"
	FieldPostalCode = "placePostalCode"
	FieldCountry    = "placeCountry"
)

const GenericMessage = "Une erreur de validité empêche l'événement d'être créé."

type rule struct {
	reason  reject.Reason
	field   string
	message string
}

var rules = []rule{
	{reject.BadEventName, FieldName, "Le nom de l'événement est invalide."},
	{reject.BadEventDate, FieldStartDate, "La date de l'événement est invalide."},
	{reject.BadEventDateInterval, FieldStartDate, "La date de fin doit être postérieure à la date de début."},
	{reject.SpamEventDescription, FieldDesc, "La description de l'événement ressemble à du spam."},
	{reject.BadEventDescription, FieldDesc, "La description de l'événement est invalide."},
	{reject.NoNeedToUpdate, "", "Cet événement est déjà à jour."},
	{reject.NoPlaceProvided, FieldPlace, "Aucun lieu n'a été indiqué."},
	{reject.NoPlaceLocationProvided, FieldPlace, "La localisation du lieu est manquante."},
	{reject.BadPlaceName, FieldPlaceName, "Le nom du lieu est invalide."},
	{reject.BadPlaceLocation, FieldPlaceCity, "La localisation du lieu est invalide."},
	{reject.BadPlaceCityName, FieldPlaceCity, "La ville du lieu est introuvable."},
	{reject.BadPlaceCityPostalCode, FieldPostalCode, "Le code postal du lieu est invalide."},
	{reject.BadUser, "", "Cet événement a déjà été créé par un autre utilisateur. [link]Voir l'événement[/link]"},
	{reject.NoCountryProvided, FieldCountry, "Le pays du lieu est manquant."},
	{reject.BadCountry, FieldCountry, "Le pays du lieu est introuvable."},
}

// ViolationOptions tunes how a reject is presented.
type ViolationOptions struct {
	// CheckUpdatability reports NoNeedToUpdate as a violation.
	CheckUpdatability bool
	// EventURL builds the link to the existing event of a BadUser violation.
	EventURL func(e *models.Event) string
}

// Violations lists one message per flag set on the event, in a stable order.
// A deleted event only yields the deletion message.
func Violations(e *models.Event, opts ViolationOptions) []models.Violation {
	r := reject.New()
	if e.Reject != nil {
		r.Merge(e.Reject)
	}
	r.Merge(e.PlaceReject)

	if r.IsValid() {
		return []models.Violation{}
	}

	if r.IsEventDeleted() {
		return []models.Violation{{Reason: reject.EventDeleted, Message: "Cet événement a été supprimé."}}
	}

	violations := []models.Violation{}
	for _, rl := range rules {
		if !r.Has(rl.reason) {
			continue
		}
		if rl.reason == reject.NoNeedToUpdate && !opts.CheckUpdatability {
			continue
		}
		message := rl.message
		if rl.reason == reject.BadUser {
			message = badUserMessage(message, e, opts)
		}
		violations = append(violations, models.Violation{Field: rl.field, Reason: rl.reason, Message: message})
	}

	if len(violations) == 0 {
		violations = append(violations, models.Violation{Reason: r.Reason(), Message: GenericMessage})
	}
	return violations
}

func badUserMessage(message string, e *models.Event, opts ViolationOptions) string {
	if opts.EventURL == nil {
		return strings.NewReplacer("[link]", "", "[/link]", "").Replace(message)
	}
	return strings.NewReplacer(
		"[link]", fmt.Sprintf(`<a href="%s">`, opts.EventURL(e)),
		"[/link]", "</a>",
	).Replace(message)
}

// EventURLTemplate returns an EventURL building "<base>/<location>/soiree/<slug>--<id>".
func EventURLTemplate(base string) func(e *models.Event) string {
	base = strings.TrimRight(base, "/")
	return func(e *models.Event) string {
		return fmt.Sprintf("%s/%s/soiree/%s--%d", base, e.LocationSlug(), normalizers.Slugify(e.Name), e.ID)
	}
}
