package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/factorlab/internal/scheduler"
	"github.com/wonny/factorlab/internal/scheduler/jobs"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Run the daily pipeline on a schedule",
	Long: `Runs avlb, mkt, css, icov, factors and signals for the current trade date.

Subcommands:
  start   - start the scheduler daemon
  list    - list registered jobs
  run     - run a job now and wait for it

Example:
  go run ./cmd/quant scheduler start --schedule "0 30 16 * * 1-5"
  go run ./cmd/quant scheduler run daily`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "Start the scheduler",
		Long: `Registers the daily job and runs until Ctrl+C.
Serves /metrics on METRICS_PORT when METRICS_ENABLED is set.`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "List registered jobs",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "Run a job now",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}
)

var dailySchedule string

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
	schedulerCmd.PersistentFlags().StringVar(&dailySchedule, "schedule", jobs.DefaultDailySchedule, "cron expression of the daily job, seconds first")
}

func initScheduler(d *deps) (*scheduler.Scheduler, error) {
	opts := scheduler.DefaultOptions()
	opts.Metrics = d.metrics
	sched := scheduler.New(d.log, opts)
	if err := sched.AddJob(jobs.NewDailyJob(d.runner, d.cal, dailySchedule, d.log)); err != nil {
		return nil, err
	}
	return sched, nil
}

func runScheduler(cmd *cobra.Command, args []string) error {
	d, err := loadDeps(cmd.Context())
	if err != nil {
		return err
	}
	defer d.Close()

	sched, err := initScheduler(d)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	d.serveMetrics()
	sched.Start()

	PrintSuccess("Scheduler started")
	fmt.Println("\nRegistered jobs:")
	PrintList(sched.GetAllJobs())
	fmt.Println("\nPress Ctrl+C to stop")

	<-cmd.Context().Done()

	fmt.Println("\nShutting down scheduler...")
	sched.Stop()
	fmt.Println("Scheduler stopped")
	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	d, err := loadDeps(cmd.Context())
	if err != nil {
		return err
	}
	defer d.Close()

	sched, err := initScheduler(d)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	fmt.Println("Registered jobs:")
	for name, st := range sched.GetJobStats() {
		fmt.Printf("  - %s (%s)\n", name, st.Schedule)
	}
	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	jobName := args[0]

	d, err := loadDeps(cmd.Context())
	if err != nil {
		return err
	}
	defer d.Close()

	sched, err := initScheduler(d)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	fmt.Printf("Running job: %s\n", jobName)
	if err := sched.RunJob(cmd.Context(), jobName); err != nil {
		return fmt.Errorf("run job: %w", err)
	}
	PrintSuccess("Job " + jobName + " completed")
	return nil
}
