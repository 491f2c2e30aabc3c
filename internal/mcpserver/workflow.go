package mcpserver

// ChecklistWorkflow describes the approval workflow that LLM consumers should
// follow before moving ledger entries.
const ChecklistWorkflow = `# Verba Checklist Workflow

Every ledger entry ("lançamento") carries two checks: preparer and reviewer.

## States

| State    | preparer | reviewer |
|----------|----------|----------|
| pending  | off      | off      |
| prepared | on       | off      |
| approved | on       | on       |

An entry never has the reviewer check without the preparer check. Writes that
would produce that combination are rejected.

## Tools

- ` + "`advance_entry`" + ` moves pending to prepared and prepared to approved.
  Advancing an approved entry changes nothing.
- ` + "`regress_entry`" + ` moves approved to prepared and prepared to pending.
  Regressing a pending entry changes nothing.
- ` + "`set_entry_check`" + ` writes one check directly. Clearing the preparer check
  while the reviewer check is set is rejected; regress twice instead.

## Cross references

- ` + "`resolve_entry_highlights`" + ` lists the highlights an entry cites. Ids whose
  highlight was removed are reported as stale, never as errors.
- ` + "`resolve_linked_decision`" + ` parses the identifier before " - " in the
  entry's linked decision reference and matches it exactly against the
  decisions of the process.

## Progress

` + "`checklist_stats`" + ` returns total, pending, prepared, approved and the
percentage approved, rounded to the nearest integer. A process is complete
when every entry is approved and not started while no entry has any check.
`
