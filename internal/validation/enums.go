package validation

// Closed enumerations for request payloads. The workflow package owns the
// authoritative status sets; these mirror them for request-shape validation.

var ValidRoles = []string{"technician", "quality", "tester", "supervisor", "planning", "admin"}

var ValidTaskTypes = []string{"technician", "quality", "tester"}

var ValidJobOrderStatuses = []string{"available", "in_progress", "done", "rejected", "archived"}

var ValidDecisions = []string{"accepted", "rejected"}

var ValidExportFormats = []string{"csv", "xlsx"}
