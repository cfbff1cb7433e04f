package replicator

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/wrouesnel/sheets-replicator/pkg/sheets"
	"go.uber.org/zap"
)

// DefaultConfigurationRange is where task definitions live on the
// configuration spreadsheet.
const DefaultConfigurationRange = "Configuration!A1:Z50"

// Header cell values which locate the task table columns.
const (
	headerSourceSheet      = "Source Sheet Id"
	headerDestinationSheet = "Destination Sheet Id"
	headerTaskID           = "ID"
	headerEnable           = "Enable"
)

// taskFixedColumns is the number of leading task columns before the repeated
// source/destination range pairs begin.
const taskFixedColumns = 5

// rateLimitSleep is how long to back off when the API reports quota
// exhaustion. Very inefficient but easy.
const rateLimitSleep = 100 * time.Second

type ReplicatorInitializationError struct {
	msg string
}

func (r ReplicatorInitializationError) Error() string {
	return fmt.Sprintf("replicator init: %s", r.msg)
}

type ReplicatorConfigError struct {
	msg string
}

func (r ReplicatorConfigError) Error() string {
	return fmt.Sprintf("replicator config: %s", r.msg)
}

type ReplicatorOperationError struct {
	msg string
}

func (r ReplicatorOperationError) Error() string {
	return fmt.Sprintf("replicator operation: %s", r.msg)
}

// ReplicatorConfig configures a replication run.
type ReplicatorConfig struct {
	// ConfigurationSheetID is the spreadsheet holding the task table.
	ConfigurationSheetID string
	// ConfigurationRange overrides DefaultConfigurationRange.
	ConfigurationRange string
	// PollFrequency is the pass interval in watch mode.
	PollFrequency time.Duration
}

// Replicator copies ranges between spreadsheets as directed by the task table
// on the configuration spreadsheet.
type Replicator interface {
	// Run executes a single replication pass.
	Run(config ReplicatorConfig) error
	// Start runs replication passes on a ticker until Stop is called.
	Start(config ReplicatorConfig) chan error
	Stop()
	// Liveness reports the time of the last successful pass.
	Liveness() time.Time
}

// ReplicatorInitializationConfig provides initialization parameters for the Replicator.
type ReplicatorInitializationConfig struct {
	// Logger is the *zap.Logger to use
	Logger *zap.Logger
	// Client is the Sheets API client
	Client sheets.Client

	// Now function for getting time
	Now func() time.Time
	// NewTicker function for creating timers
	NewTicker func(duration time.Duration) *time.Ticker
	// Sleep function used for rate-limit backoff
	Sleep func(duration time.Duration)
}

// NewReplicator initializes a new Replicator and validates its configuration.
func NewReplicator(config ReplicatorInitializationConfig) (Replicator, error) {
	if config.Logger == nil {
		return nil, &ReplicatorInitializationError{msg: "no logger provided"}
	}

	if config.Client == nil {
		return nil, &ReplicatorInitializationError{msg: "no sheets client provided"}
	}

	if config.Now == nil {
		config.Now = time.Now
	}

	if config.NewTicker == nil {
		config.NewTicker = time.NewTicker
	}

	if config.Sleep == nil {
		config.Sleep = time.Sleep
	}

	return &replicator{
		exitCh:                         make(chan struct{}),
		ReplicatorInitializationConfig: config,
	}, nil
}

type replicator struct {
	exitCh chan struct{}

	mtx         sync.Mutex
	lastSuccess time.Time

	ReplicatorInitializationConfig
}

func (r *replicator) log() *zap.Logger {
	return r.Logger
}

// columnIndex holds the positions of the well-known task table columns as
// discovered from the header row.
type columnIndex struct {
	sourceSheet      int
	destinationSheet int
	taskID           int
	enable           int
}

// taskTable is the parsed configuration range.
type taskTable struct {
	columns columnIndex
	tasks   [][]interface{}
}

// rangePair is one source range to copy to one destination range.
type rangePair struct {
	source      string
	destination string
}

// Run executes a single replication pass: fetch the task table, process every
// enabled task, then write any accumulated errors back to the configuration
// spreadsheet.
func (r *replicator) Run(config ReplicatorConfig) error {
	if config.ConfigurationSheetID == "" {
		return &ReplicatorConfigError{msg: "no configuration sheet id provided"}
	}
	if config.ConfigurationRange == "" {
		config.ConfigurationRange = DefaultConfigurationRange
	}

	table, err := r.fetchConfiguration(config)
	if err != nil {
		return err
	}

	taskErrors := r.processTasks(table)

	if err := r.reportErrors(config, taskErrors); err != nil {
		return err
	}

	r.mtx.Lock()
	r.lastSuccess = r.Now()
	r.mtx.Unlock()

	return nil
}

func (r *replicator) Liveness() time.Time {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return r.lastSuccess
}

// fetchConfiguration reads the configuration range and locates the well-known
// columns from the header row. The first row is always the header; every
// following row is a task.
func (r *replicator) fetchConfiguration(config ReplicatorConfig) (*taskTable, error) {
	r.log().Debug("Fetching configuration data",
		zap.String("spreadsheet_id", config.ConfigurationSheetID),
		zap.String("range", config.ConfigurationRange))

	var resp *sheets.ValueRange
	err := r.withRateLimitRetry(func() error {
		var err error
		resp, err = r.Client.GetValues(config.ConfigurationSheetID, config.ConfigurationRange,
			sheets.GetOptions{MajorDimension: sheets.MajorDimensionRows})
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "fetchConfiguration")
	}

	if len(resp.Values) == 0 {
		return nil, &ReplicatorOperationError{msg: "failed to fetch configuration data"}
	}

	table := &taskTable{
		columns: columnIndex{sourceSheet: -1, destinationSheet: -1, taskID: -1, enable: -1},
		tasks:   resp.Values[1:],
	}

	for column, value := range resp.Values[0] {
		switch cellString(value) {
		case headerSourceSheet:
			table.columns.sourceSheet = column
		case headerDestinationSheet:
			table.columns.destinationSheet = column
		case headerTaskID:
			table.columns.taskID = column
		case headerEnable:
			table.columns.enable = column
		}
	}

	if table.columns.sourceSheet < 0 || table.columns.destinationSheet < 0 ||
		table.columns.taskID < 0 || table.columns.enable < 0 {
		return nil, &ReplicatorConfigError{msg: "configuration header row is missing required columns"}
	}

	r.log().Info("Configuration fetched", zap.Int("tasks", len(table.tasks)))

	return table, nil
}

// processTasks runs every enabled task and returns the accumulated error
// report rows. Task failures never abort the pass.
func (r *replicator) processTasks(table *taskTable) []string {
	taskErrors := []string{}

	for _, task := range table.tasks {
		taskID := cellString(taskCell(task, table.columns.taskID))

		if cellString(taskCell(task, table.columns.enable)) != "TRUE" {
			r.log().Debug("Skipping disabled task", zap.String("task_id", taskID))
			continue
		}

		if (len(task)-taskFixedColumns)%2 != 0 {
			taskErrors = append(taskErrors,
				fmt.Sprintf("Task %s is not configured properly. Check source and destination pair.", taskID))
			continue
		}

		sourceSheet := cellString(taskCell(task, table.columns.sourceSheet))
		destinationSheet := cellString(taskCell(task, table.columns.destinationSheet))

		for _, pair := range rangePairs(task) {
			logger := r.log().With(zap.String("task_id", taskID),
				zap.String("source_range", pair.source),
				zap.String("destination_range", pair.destination))

			var data *sheets.ValueRange
			err := r.withRateLimitRetry(func() error {
				var err error
				data, err = r.Client.GetValues(sourceSheet, pair.source, sheets.GetOptions{
					MajorDimension:    sheets.MajorDimensionRows,
					ValueRenderOption: sheets.ValueRenderUnformatted,
				})
				return err
			})
			if err != nil {
				logger.Warn("Task read failed", zap.Error(err))
				taskErrors = append(taskErrors,
					fmt.Sprintf("Failed to fetch data for task %s: %v", taskID, err))
				continue
			}

			data.Range = pair.destination

			err = r.withRateLimitRetry(func() error {
				return r.Client.UpdateValues(destinationSheet, pair.destination, data,
					sheets.UpdateOptions{ValueInputOption: sheets.ValueInputRaw})
			})
			if err != nil {
				logger.Warn("Task write failed", zap.Error(err))
				taskErrors = append(taskErrors,
					fmt.Sprintf("Failed to write data for task %s: %v", taskID, err))
				continue
			}

			logger.Debug("Range replicated")
		}
	}

	return taskErrors
}

// reportErrors writes the accumulated task errors to the Errors sheet on the
// configuration spreadsheet. A failure here fails the whole pass.
func (r *replicator) reportErrors(config ReplicatorConfig, taskErrors []string) error {
	if len(taskErrors) == 0 {
		return nil
	}

	errorRange := fmt.Sprintf("Errors!A1:A%d", len(taskErrors))

	values := make([][]interface{}, 0, len(taskErrors))
	for _, message := range taskErrors {
		values = append(values, []interface{}{message})
	}

	body := &sheets.ValueRange{
		Range:          errorRange,
		MajorDimension: sheets.MajorDimensionRows,
		Values:         values,
	}

	r.log().Warn("Writing error report", zap.Int("errors", len(taskErrors)))

	err := r.withRateLimitRetry(func() error {
		return r.Client.UpdateValues(config.ConfigurationSheetID, errorRange, body,
			sheets.UpdateOptions{ValueInputOption: sheets.ValueInputRaw})
	})

	return errors.Wrap(err, "reportErrors")
}

// withRateLimitRetry retries op forever while the API reports an exceeded
// read or write request quota.
func (r *replicator) withRateLimitRetry(op func() error) error {
	for {
		err := op()

		apiErr := &sheets.APIError{}
		if errors.As(err, &apiErr) && apiErr.RateLimited() {
			r.log().Warn("Request quota exceeded - backing off",
				zap.Duration("sleep", rateLimitSleep))
			r.Sleep(rateLimitSleep)
			continue
		}

		return err
	}
}

// rangePairs extracts the source/destination range pairs from the repeated
// trailing task columns. The caller has already checked the column count is
// even.
func rangePairs(task []interface{}) []rangePair {
	pairs := []rangePair{}
	for i := taskFixedColumns; i+1 < len(task); i += 2 {
		pairs = append(pairs, rangePair{
			source:      cellString(task[i]),
			destination: cellString(task[i+1]),
		})
	}
	return pairs
}

// taskCell reads a cell, treating columns past the end of the row as empty.
// The API omits trailing empty cells.
func taskCell(task []interface{}, column int) interface{} {
	if column < 0 || column >= len(task) {
		return ""
	}
	return task[column]
}

// cellString renders a cell value as a string. Cells arrive as untyped JSON.
func cellString(value interface{}) string {
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprint(value)
}

// Start runs a replication pass immediately and then on every tick until
// Stop is called.
func (r *replicator) Start(config ReplicatorConfig) chan error {
	errCh := make(chan error)
	go func() {
		if config.PollFrequency <= 0 {
			errCh <- &ReplicatorConfigError{msg: "poll frequency must be positive"}
			return
		}

		ticker := r.NewTicker(config.PollFrequency)

		r.runWatchPass(config)

	mainLoop:
		for {
			select {
			case <-r.exitCh:
				r.log().Info("Shutdown requested")
				break mainLoop

			case t := <-ticker.C:
				r.log().Debug("Tick fired. Do next pass.", zap.Time("trigger_time", t),
					zap.Time("response_time", r.Now()))
				r.runWatchPass(config)
			}
		}

		r.log().Debug("Shutdown complete")
		ticker.Stop()
		errCh <- nil
		close(errCh)
	}()

	return errCh
}

// runWatchPass logs pass failures instead of propagating them: watch mode
// keeps going and retries on the next tick.
func (r *replicator) runWatchPass(config ReplicatorConfig) {
	if err := r.Run(config); err != nil {
		r.log().Error("Replication pass FAILED.", zap.Error(err))
		return
	}
	r.log().Info("Replication pass complete")
}

func (r *replicator) Stop() {
	select {
	case <-r.exitCh:
		return
	default:
		close(r.exitCh)
	}
}
