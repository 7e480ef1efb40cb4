// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package executor

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// Rollback Script Synthesis
// =============================================================================

// SynthesizeRollback builds the reviewed-before-run SQL script that restores
// quarantined records to the production table.
//
// The script is never executed by the monitor itself. It restores rows from
// the quarantine table (stripping the two quarantine bookkeeping columns),
// deletes them from quarantine, and ends with a verification count an
// operator compares against the expected number. idColumn must match the
// column the quarantine move filtered on. Record ids come from model output,
// so they are embedded as string literals with both backslashes and single
// quotes escaped.
func SynthesizeRollback(productionTable, quarantineTable, idColumn, decisionID string, ids []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "-- Rollback script for decision %s\n", decisionID)
	fmt.Fprintf(&b, "-- Generated %s\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "-- Restores %d quarantined records. Review before running.\n\n", len(ids))

	inList := quoteIDList(ids)

	fmt.Fprintf(&b, "-- Step 1: restore records to production\n")
	fmt.Fprintf(&b, "INSERT INTO `%s`\n", productionTable)
	fmt.Fprintf(&b, "SELECT * EXCEPT(quarantined_at, quarantine_reason)\n")
	fmt.Fprintf(&b, "FROM `%s`\n", quarantineTable)
	fmt.Fprintf(&b, "WHERE %s IN (%s);\n\n", idColumn, inList)

	fmt.Fprintf(&b, "-- Step 2: remove restored records from quarantine\n")
	fmt.Fprintf(&b, "DELETE FROM `%s`\n", quarantineTable)
	fmt.Fprintf(&b, "WHERE %s IN (%s);\n\n", idColumn, inList)

	fmt.Fprintf(&b, "-- Step 3: verify (expect %d)\n", len(ids))
	fmt.Fprintf(&b, "SELECT COUNT(*) AS restored\n")
	fmt.Fprintf(&b, "FROM `%s`\n", productionTable)
	fmt.Fprintf(&b, "WHERE %s IN (%s);\n", idColumn, inList)

	return b.String()
}

// quoteIDList renders ids as standard-SQL string literals. Backslashes are
// escaped before quotes; an id ending in a backslash would otherwise turn
// the closing quote into an escaped character and unterminate the literal.
func quoteIDList(ids []string) string {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		id = strings.ReplaceAll(id, `\`, `\\`)
		id = strings.ReplaceAll(id, `'`, `\'`)
		quoted[i] = "'" + id + "'"
	}
	return strings.Join(quoted, ", ")
}
