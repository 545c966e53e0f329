package vigia

import "errors"

// ErrNoTariffData is returned when the download stage finds no tariff
// state file to read PDF URLs from.
var ErrNoTariffData = errors.New("vigia: no tariff data available")

// ErrNoTariffURL is returned when the portal check could not locate the
// tariff page link.
var ErrNoTariffURL = errors.New("vigia: tariff page URL not available")

// ErrInvalidPriority is returned when a task is created with an unknown
// priority level.
var ErrInvalidPriority = errors.New("vigia: invalid task priority")
