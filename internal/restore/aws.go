package restore

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/drorchestrator/backend-go/internal/domain"
	"github.com/drorchestrator/backend-go/internal/probe"
)

const volumeWaitTimeout = 10 * time.Minute

type rdsAPI interface {
	DescribeDBInstances(ctx context.Context, in *rds.DescribeDBInstancesInput, optFns ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error)
	RestoreDBInstanceToPointInTime(ctx context.Context, in *rds.RestoreDBInstanceToPointInTimeInput, optFns ...func(*rds.Options)) (*rds.RestoreDBInstanceToPointInTimeOutput, error)
	DeleteDBInstance(ctx context.Context, in *rds.DeleteDBInstanceInput, optFns ...func(*rds.Options)) (*rds.DeleteDBInstanceOutput, error)
}

type ec2API interface {
	DescribeSnapshots(ctx context.Context, in *ec2.DescribeSnapshotsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSnapshotsOutput, error)
	DescribeVolumes(ctx context.Context, in *ec2.DescribeVolumesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error)
	CreateVolume(ctx context.Context, in *ec2.CreateVolumeInput, optFns ...func(*ec2.Options)) (*ec2.CreateVolumeOutput, error)
	AttachVolume(ctx context.Context, in *ec2.AttachVolumeInput, optFns ...func(*ec2.Options)) (*ec2.AttachVolumeOutput, error)
	DetachVolume(ctx context.Context, in *ec2.DetachVolumeInput, optFns ...func(*ec2.Options)) (*ec2.DetachVolumeOutput, error)
	DeleteVolume(ctx context.Context, in *ec2.DeleteVolumeInput, optFns ...func(*ec2.Options)) (*ec2.DeleteVolumeOutput, error)
}

// AwsRestorers holds the AWS-backed restorers for databases (RDS
// point-in-time restore) and storage (EBS volumes from snapshots).
type AwsRestorers struct {
	Database *DatabaseRestorer
	Storage  *StorageRestorer
}

// NewAwsRestorers loads the default AWS config for region
func NewAwsRestorers(ctx context.Context, region string) (*AwsRestorers, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	return &AwsRestorers{
		Database: &DatabaseRestorer{rds: rds.NewFromConfig(cfg), now: time.Now},
		Storage:  &StorageRestorer{ec2: ec2.NewFromConfig(cfg), now: time.Now},
	}, nil
}

// DatabaseRestorer restores an RDS instance to a point in time.
// BackupLocation is the source instance, TargetLocation the new one.
type DatabaseRestorer struct {
	rds rdsAPI
	now func() time.Time
}

func (r *DatabaseRestorer) Restore(ctx context.Context, comp domain.RecoveryComponent) (*Outcome, error) {
	if comp.BackupLocation == "" || comp.TargetLocation == "" {
		return nil, fmt.Errorf("%w: database restore needs backup and target locations", domain.ErrComponentRestore)
	}

	restoreAt, err := r.restorePoint(ctx, comp)
	if err != nil {
		return nil, err
	}

	in := &rds.RestoreDBInstanceToPointInTimeInput{
		SourceDBInstanceIdentifier: aws.String(comp.BackupLocation),
		TargetDBInstanceIdentifier: aws.String(comp.TargetLocation),
		Tags: []rdstypes.Tag{
			{Key: aws.String("recovery-component"), Value: aws.String(comp.ID)},
		},
	}
	if restoreAt.explicit {
		in.RestoreTime = aws.Time(restoreAt.at)
	} else {
		in.UseLatestRestorableTime = aws.Bool(true)
	}
	if class := probe.StringProp(comp.Parameters, "db_instance_class"); class != "" {
		in.DBInstanceClass = aws.String(class)
	}

	out, err := r.rds.RestoreDBInstanceToPointInTime(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("restore db instance %s: %w", comp.TargetLocation, err)
	}
	log.Printf("Restoring RDS instance %s from %s", comp.TargetLocation, comp.BackupLocation)

	if probe.BoolProp(comp.Parameters, "wait_for_available") {
		waiter := rds.NewDBInstanceAvailableWaiter(r.rds)
		wait := comp.Timeout(time.Hour)
		if err := waiter.Wait(ctx, &rds.DescribeDBInstancesInput{
			DBInstanceIdentifier: aws.String(comp.TargetLocation),
		}, wait); err != nil {
			return nil, fmt.Errorf("wait for db instance %s: %w", comp.TargetLocation, err)
		}
	}

	target := comp.TargetLocation
	rollback := func() (map[string]any, error) {
		_, err := r.rds.DeleteDBInstance(context.Background(), &rds.DeleteDBInstanceInput{
			DBInstanceIdentifier: aws.String(target),
			SkipFinalSnapshot:    aws.Bool(true),
		})
		if err != nil {
			return nil, fmt.Errorf("delete db instance %s: %w", target, err)
		}
		log.Printf("Rollback: deleted restored RDS instance %s", target)
		return map[string]any{"deleted": target}, nil
	}

	detail := map[string]any{
		"action":       "rds_point_in_time_restore",
		"source":       comp.BackupLocation,
		"target":       comp.TargetLocation,
		"restore_time": restoreAt.at.UTC().Format(time.RFC3339),
	}
	if out.DBInstance != nil && out.DBInstance.DBInstanceStatus != nil {
		detail["status"] = *out.DBInstance.DBInstanceStatus
	}

	outcome := &Outcome{
		Success:             true,
		BytesTransferred:    comp.SizeBytes,
		Detail:              detail,
		Rollback:            rollback,
		RollbackDescription: fmt.Sprintf("delete restored RDS instance %s", target),
	}
	if !restoreAt.at.IsZero() {
		outcome.DataLossWindow = window(r.now().Sub(restoreAt.at))
	}
	return outcome, nil
}

type restorePoint struct {
	at       time.Time
	explicit bool
}

func (r *DatabaseRestorer) restorePoint(ctx context.Context, comp domain.RecoveryComponent) (restorePoint, error) {
	if raw := probe.StringProp(comp.Parameters, "restore_time"); raw != "" {
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return restorePoint{}, fmt.Errorf("%w: restore_time %q: %v", domain.ErrInvalidPlan, raw, err)
		}
		return restorePoint{at: at, explicit: true}, nil
	}

	out, err := r.rds.DescribeDBInstances(ctx, &rds.DescribeDBInstancesInput{
		DBInstanceIdentifier: aws.String(comp.BackupLocation),
	})
	if err != nil {
		return restorePoint{}, fmt.Errorf("describe db instance %s: %w", comp.BackupLocation, err)
	}
	if len(out.DBInstances) == 0 {
		return restorePoint{}, fmt.Errorf("%w: source db instance %s not found", domain.ErrComponentRestore, comp.BackupLocation)
	}
	var rp restorePoint
	if t := out.DBInstances[0].LatestRestorableTime; t != nil {
		rp.at = *t
	}
	return rp, nil
}

// Prestage reports whether the target instance already exists
func (r *DatabaseRestorer) Prestage(ctx context.Context, comp domain.RecoveryComponent) (map[string]any, error) {
	out, err := r.rds.DescribeDBInstances(ctx, &rds.DescribeDBInstancesInput{
		DBInstanceIdentifier: aws.String(comp.TargetLocation),
	})
	if err != nil {
		return map[string]any{"exists": false}, nil
	}
	state := map[string]any{"exists": len(out.DBInstances) > 0}
	if len(out.DBInstances) > 0 && out.DBInstances[0].DBInstanceStatus != nil {
		state["status"] = *out.DBInstances[0].DBInstanceStatus
	}
	return state, nil
}

func (r *DatabaseRestorer) EstimateResources(comp domain.RecoveryComponent) domain.ResourceRequirements {
	return DefaultEstimate(comp)
}

// StorageRestorer creates an EBS volume from a snapshot. BackupLocation is
// the snapshot id. An "instance_id" parameter attaches the new volume at
// "device".
type StorageRestorer struct {
	ec2 ec2API
	now func() time.Time
}

func (r *StorageRestorer) Restore(ctx context.Context, comp domain.RecoveryComponent) (*Outcome, error) {
	az := probe.StringProp(comp.Parameters, "availability_zone")
	if comp.BackupLocation == "" || az == "" {
		return nil, fmt.Errorf("%w: storage restore needs a snapshot and availability_zone", domain.ErrComponentRestore)
	}

	snaps, err := r.ec2.DescribeSnapshots(ctx, &ec2.DescribeSnapshotsInput{
		SnapshotIds: []string{comp.BackupLocation},
	})
	if err != nil {
		return nil, fmt.Errorf("describe snapshot %s: %w", comp.BackupLocation, err)
	}
	if len(snaps.Snapshots) == 0 {
		return nil, fmt.Errorf("%w: snapshot %s not found", domain.ErrComponentRestore, comp.BackupLocation)
	}
	snap := snaps.Snapshots[0]

	in := &ec2.CreateVolumeInput{
		AvailabilityZone: aws.String(az),
		SnapshotId:       aws.String(comp.BackupLocation),
		TagSpecifications: []ec2types.TagSpecification{{
			ResourceType: ec2types.ResourceTypeVolume,
			Tags: []ec2types.Tag{
				{Key: aws.String("recovery-component"), Value: aws.String(comp.ID)},
			},
		}},
	}
	if vt := probe.StringProp(comp.Parameters, "volume_type"); vt != "" {
		in.VolumeType = ec2types.VolumeType(vt)
	}

	vol, err := r.ec2.CreateVolume(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("create volume from %s: %w", comp.BackupLocation, err)
	}
	volumeID := aws.ToString(vol.VolumeId)
	log.Printf("Created volume %s from snapshot %s", volumeID, comp.BackupLocation)

	detail := map[string]any{
		"action":    "ebs_restore",
		"snapshot":  comp.BackupLocation,
		"volume_id": volumeID,
	}

	instanceID := probe.StringProp(comp.Parameters, "instance_id")
	if instanceID != "" {
		device := probe.StringProp(comp.Parameters, "device")
		if device == "" {
			device = "/dev/sdf"
		}
		if err := r.waitAvailable(ctx, volumeID); err != nil {
			return nil, err
		}
		if _, err := r.ec2.AttachVolume(ctx, &ec2.AttachVolumeInput{
			Device:     aws.String(device),
			InstanceId: aws.String(instanceID),
			VolumeId:   aws.String(volumeID),
		}); err != nil {
			return nil, fmt.Errorf("attach volume %s to %s: %w", volumeID, instanceID, err)
		}
		log.Printf("Attached volume %s to %s at %s", volumeID, instanceID, device)
		detail["instance_id"] = instanceID
		detail["device"] = device
	}

	rollback := func() (map[string]any, error) {
		rbCtx := context.Background()
		if instanceID != "" {
			if _, err := r.ec2.DetachVolume(rbCtx, &ec2.DetachVolumeInput{VolumeId: aws.String(volumeID)}); err != nil {
				return nil, fmt.Errorf("detach volume %s: %w", volumeID, err)
			}
			if err := r.waitAvailable(rbCtx, volumeID); err != nil {
				return nil, err
			}
		}
		if _, err := r.ec2.DeleteVolume(rbCtx, &ec2.DeleteVolumeInput{VolumeId: aws.String(volumeID)}); err != nil {
			return nil, fmt.Errorf("delete volume %s: %w", volumeID, err)
		}
		log.Printf("Rollback: deleted volume %s", volumeID)
		return map[string]any{"deleted": volumeID}, nil
	}

	bytes := comp.SizeBytes
	if bytes == 0 && snap.VolumeSize != nil {
		bytes = int64(*snap.VolumeSize) << 30
	}
	outcome := &Outcome{
		Success:             true,
		BytesTransferred:    bytes,
		Detail:              detail,
		Rollback:            rollback,
		RollbackDescription: fmt.Sprintf("delete restored volume %s", volumeID),
	}
	if snap.StartTime != nil {
		outcome.DataLossWindow = window(r.now().Sub(*snap.StartTime))
	}
	return outcome, nil
}

func (r *StorageRestorer) waitAvailable(ctx context.Context, volumeID string) error {
	waiter := ec2.NewVolumeAvailableWaiter(r.ec2)
	if err := waiter.Wait(ctx, &ec2.DescribeVolumesInput{VolumeIds: []string{volumeID}}, volumeWaitTimeout); err != nil {
		return fmt.Errorf("wait for volume %s: %w", volumeID, err)
	}
	return nil
}

func (r *StorageRestorer) EstimateResources(comp domain.RecoveryComponent) domain.ResourceRequirements {
	return DefaultEstimate(comp)
}
