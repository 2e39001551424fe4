package store

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

// Table and column names shared by the repositories.
const (
	tableProfiles        = "profiles"
	tableSubtopicStates  = "subtopic_states"
	tableEpisodes        = "mastery_episodes"
	tableMasteryEvents   = "mastery_events"
	tableLLMRequestEvent = "llm_request_events"

	colID        = "id"
	colSequence  = "sequence"
	colTimestamp = "timestamp"
	colStudentID = "student_id"
	colSubtopic  = "subtopic_id"
	colData      = "data"
)

// eventColumns returns the base columns every event table carries: an
// auto-increment id, the global sequence number and the event time.
func eventColumns(extra ...*schema.Column) []*schema.Column {
	cols := []*schema.Column{
		{Name: colID, Type: field.TypeInt64, Increment: true},
		{Name: colSequence, Type: field.TypeInt64, Unique: true},
		{Name: colTimestamp, Type: field.TypeTime},
	}
	return append(cols, extra...)
}

func eventIndexes(table string, cols []*schema.Column) []*schema.Index {
	return []*schema.Index{
		{Name: table + "_sequence", Columns: []*schema.Column{cols[1]}},
		{Name: table + "_timestamp", Columns: []*schema.Column{cols[2]}},
	}
}

var (
	profilesColumns = []*schema.Column{
		{Name: colID, Type: field.TypeInt64, Increment: true},
		{Name: colStudentID, Type: field.TypeString, Unique: true},
		{Name: "current_subtopic_id", Type: field.TypeString},
		{Name: "mastered", Type: field.TypeJSON},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
	}
	profilesTable = &schema.Table{
		Name:       tableProfiles,
		Columns:    profilesColumns,
		PrimaryKey: []*schema.Column{profilesColumns[0]},
	}

	subtopicStatesColumns = []*schema.Column{
		{Name: colID, Type: field.TypeInt64, Increment: true},
		{Name: colStudentID, Type: field.TypeString},
		{Name: colSubtopic, Type: field.TypeString},
		{Name: "attempt_count", Type: field.TypeInt},
		{Name: "mastery_score", Type: field.TypeFloat64},
		{Name: colData, Type: field.TypeJSON},
		{Name: "updated_at", Type: field.TypeTime},
	}
	subtopicStatesTable = &schema.Table{
		Name:       tableSubtopicStates,
		Columns:    subtopicStatesColumns,
		PrimaryKey: []*schema.Column{subtopicStatesColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "subtopic_states_student_subtopic",
				Unique:  true,
				Columns: []*schema.Column{subtopicStatesColumns[1], subtopicStatesColumns[2]},
			},
		},
	}

	episodesColumns = eventColumns(
		&schema.Column{Name: colStudentID, Type: field.TypeString},
		&schema.Column{Name: colSubtopic, Type: field.TypeString},
		&schema.Column{Name: "final_score", Type: field.TypeFloat64},
		&schema.Column{Name: colData, Type: field.TypeJSON},
	)
	episodesTable = &schema.Table{
		Name:       tableEpisodes,
		Columns:    episodesColumns,
		PrimaryKey: []*schema.Column{episodesColumns[0]},
		Indexes: append(eventIndexes(tableEpisodes, episodesColumns),
			&schema.Index{Name: "mastery_episodes_student", Columns: []*schema.Column{episodesColumns[3]}}),
	}

	masteryEventsColumns = eventColumns(
		&schema.Column{Name: colStudentID, Type: field.TypeString},
		&schema.Column{Name: colSubtopic, Type: field.TypeString},
		&schema.Column{Name: "kind", Type: field.TypeString},
		&schema.Column{Name: "problem_id", Type: field.TypeString},
		&schema.Column{Name: "cluster_id", Type: field.TypeString},
		&schema.Column{Name: "attempt_id", Type: field.TypeString},
		&schema.Column{Name: "correctness", Type: field.TypeFloat64},
		&schema.Column{Name: "mastery_before", Type: field.TypeFloat64},
		&schema.Column{Name: "mastery_after", Type: field.TypeFloat64},
		&schema.Column{Name: "attempt_count", Type: field.TypeInt},
	)
	masteryEventsTable = &schema.Table{
		Name:       tableMasteryEvents,
		Columns:    masteryEventsColumns,
		PrimaryKey: []*schema.Column{masteryEventsColumns[0]},
		Indexes: append(eventIndexes(tableMasteryEvents, masteryEventsColumns),
			&schema.Index{
				Name:    "mastery_events_student_subtopic",
				Columns: []*schema.Column{masteryEventsColumns[3], masteryEventsColumns[4]},
			}),
	}

	llmRequestEventsColumns = eventColumns(
		&schema.Column{Name: "provider", Type: field.TypeString},
		&schema.Column{Name: "model", Type: field.TypeString},
		&schema.Column{Name: "purpose", Type: field.TypeString},
		&schema.Column{Name: "input_tokens", Type: field.TypeInt},
		&schema.Column{Name: "output_tokens", Type: field.TypeInt},
		&schema.Column{Name: "latency_ms", Type: field.TypeInt64},
		&schema.Column{Name: "success", Type: field.TypeBool},
		&schema.Column{Name: "error_message", Type: field.TypeString},
	)
	llmRequestEventsTable = &schema.Table{
		Name:       tableLLMRequestEvent,
		Columns:    llmRequestEventsColumns,
		PrimaryKey: []*schema.Column{llmRequestEventsColumns[0]},
		Indexes: append(eventIndexes(tableLLMRequestEvent, llmRequestEventsColumns),
			&schema.Index{Name: "llm_request_events_provider", Columns: []*schema.Column{llmRequestEventsColumns[3]}},
			&schema.Index{Name: "llm_request_events_purpose", Columns: []*schema.Column{llmRequestEventsColumns[5]}},
		),
	}

	// tables lists every table managed by auto-migration.
	tables = []*schema.Table{
		profilesTable,
		subtopicStatesTable,
		episodesTable,
		masteryEventsTable,
		llmRequestEventsTable,
	}
)

// migrate creates or updates all tables on drv.
func migrate(ctx context.Context, drv dialect.Driver) error {
	m, err := schema.NewMigrate(drv)
	if err != nil {
		return fmt.Errorf("init migrate: %w", err)
	}
	if err := m.Create(ctx, tables...); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// builder returns the SQL builder for the store's dialect.
func builder() *entsql.DialectBuilder {
	return entsql.Dialect(dialect.SQLite)
}
