package metrics

import (
	"pairbot/logger"
)

// EmitMetric logs a structured metric event and forwards numeric values to
// CloudWatch when the logger has a client configured.
func EmitMetric(log *logger.Log, component, name string, value interface{}, metricType string, fields logger.Fields) bool {
	if name == "" {
		return false
	}
	if log == nil {
		log = logger.GetLogger()
	}

	copied := make(logger.Fields, len(fields))
	for k, v := range fields {
		copied[k] = v
	}

	log.WithFields(logger.Fields{}).LogMetric(component, name, value, metricType, copied)
	return true
}
