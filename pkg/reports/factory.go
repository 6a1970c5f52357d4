package reports

import (
	"fmt"
)

// NewGenerator picks the report implementation for the given type.
func NewGenerator(reportType ReportType, s ReportStore) (Generator, error) {
	switch reportType {
	case ReportTypeOutcomes:
		return NewOutcomeReport(s), nil
	case ReportTypePlan:
		return NewPlanReport(s), nil
	default:
		return nil, fmt.Errorf("unknown report type: %s", reportType)
	}
}
