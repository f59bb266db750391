package engine

import (
	"errors"
	"fmt"

	"runline/internal/domain"
)

// triggerTypes maps supported trigger types to whether they require a
// model binding. New trigger types register here.
var triggerTypes = map[string]struct{ requiresModel bool }{
	domain.TriggerVersionCreated: {requiresModel: true},
}

// ValidateTrigger rejects unknown trigger types and incomplete bindings
// at revision creation time so matching never has to.
func ValidateTrigger(trg domain.TriggerDefinition) error {
	spec, ok := triggerTypes[trg.Type]
	if !ok {
		return fmt.Errorf("unknown trigger type %q", trg.Type)
	}
	if spec.requiresModel && (trg.ModelID == nil || *trg.ModelID == "") {
		return errors.New("versionCreated triggers require a model_id")
	}
	return nil
}
