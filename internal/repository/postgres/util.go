package postgres

import "strconv"

// itoa is a tiny local alias used when hand-building $N placeholders for
// dynamic filter queries — kept separate from fmt.Sprintf-heavy batch
// inserts (see access_log_repo.go) for readability.
func itoa(n int) string { return strconv.Itoa(n) }
