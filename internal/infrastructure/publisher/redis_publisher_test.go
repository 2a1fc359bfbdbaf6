package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/require"

	"beacon-pilot/internal/domain/entity"
)

func sampleResult() entity.DetectionResult {
	return entity.DetectionResult{
		Seq:   42,
		Found: true,
		Beacon: &entity.Beacon{
			BeaconCandidate: entity.BeaconCandidate{Inner: 3, Outer: 1, Vertices: 3, Ratio: 15, InnerArea: 240, OuterArea: 3600},
			Centroid:        entity.Point2{X: 130, Y: 130},
		},
		Offset:      entity.Point2{X: -70, Y: -20},
		FrameWidth:  400,
		FrameHeight: 300,
		Contours:    7,
		At:          time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC),
	}
}

func TestRedisPublisher_Publish(t *testing.T) {
	db, mock := redismock.NewClientMock()
	pub := NewRedisPublisher(db, "beacon:detections")

	data, err := json.Marshal(sampleResult())
	require.NoError(t, err)

	mock.ExpectPublish("beacon:detections", data).SetVal(1)
	mock.ExpectSet("beacon:detections:latest", data, LatestTTL).SetVal("OK")

	require.NoError(t, pub.Publish(context.Background(), sampleResult()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisPublisher_PublishError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	pub := NewRedisPublisher(db, "beacon:detections")

	data, err := json.Marshal(sampleResult())
	require.NoError(t, err)

	mock.ExpectPublish("beacon:detections", data).SetErr(errors.New("connection refused"))

	err = pub.Publish(context.Background(), sampleResult())
	require.Error(t, err)
	require.Contains(t, err.Error(), "publish to beacon:detections")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisPublisher_LatestKey(t *testing.T) {
	db, _ := redismock.NewClientMock()
	require.Equal(t, "detections:latest", NewRedisPublisher(db, "detections").LatestKey())
}
