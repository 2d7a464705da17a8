// Package metrics publishes per-cycle pipeline counters to CloudWatch.
// Publishing is optional: a nil or disabled reporter turns every call into a
// no-op so the scheduler never has to branch on configuration.
package metrics

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"cseflow/logger"
)

// CycleStats summarises one completed poll cycle.
type CycleStats struct {
	SourcesSucceeded  int
	SourcesFailed     int
	CompaniesCaptured int
	Duration          time.Duration
}

// CycleReporter sends cycle statistics to CloudWatch.
type CycleReporter struct {
	client    *cloudwatch.Client
	namespace string
	log       *logger.Log
}

// NewCycleReporter builds a reporter. When enabled is false or the AWS
// configuration cannot be loaded, the returned reporter is inert and only
// logs at debug level.
func NewCycleReporter(enabled bool, region, namespace string, log *logger.Log) *CycleReporter {
	if log == nil {
		log = logger.GetLogger()
	}
	r := &CycleReporter{namespace: namespace, log: log}
	if !enabled {
		return r
	}

	ctx := context.Background()
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		log.WithComponent("cloudwatch").WithError(err).Warn("failed to load AWS configuration; CloudWatch metrics disabled")
		return r
	}
	r.client = cloudwatch.NewFromConfig(cfg)
	log.WithComponent("cloudwatch").WithFields(logger.Fields{
		"region":    cfg.Region,
		"namespace": namespace,
	}).Info("initialized CloudWatch client")
	return r
}

// Report publishes the cycle counters. Failures are logged and swallowed;
// metrics must never stall or abort the polling loop.
func (r *CycleReporter) Report(ctx context.Context, stats CycleStats) {
	if r == nil || r.client == nil {
		return
	}
	log := r.log.WithComponent("cloudwatch")

	dims := []cwtypes.Dimension{{
		Name:  aws.String("component"),
		Value: aws.String("scheduler"),
	}}
	data := []cwtypes.MetricDatum{
		{
			MetricName: aws.String("sources_succeeded"),
			Dimensions: dims,
			Unit:       cwtypes.StandardUnitCount,
			Value:      aws.Float64(float64(stats.SourcesSucceeded)),
		},
		{
			MetricName: aws.String("sources_failed"),
			Dimensions: dims,
			Unit:       cwtypes.StandardUnitCount,
			Value:      aws.Float64(float64(stats.SourcesFailed)),
		},
		{
			MetricName: aws.String("companies_captured"),
			Dimensions: dims,
			Unit:       cwtypes.StandardUnitCount,
			Value:      aws.Float64(float64(stats.CompaniesCaptured)),
		},
		{
			MetricName: aws.String("cycle_seconds"),
			Dimensions: dims,
			Unit:       cwtypes.StandardUnitSeconds,
			Value:      aws.Float64(stats.Duration.Seconds()),
		},
	}

	if _, err := r.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(r.namespace),
		MetricData: data,
	}); err != nil {
		log.WithError(err).Warn("failed to publish CloudWatch metrics")
		return
	}
	log.Debug("published cycle metrics to CloudWatch")
}
