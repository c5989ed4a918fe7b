package rekog

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/google/uuid"
)

// Match is one candidate from a search or comparison, ranked by similarity.
type Match struct {
	FaceID          string  `json:"faceId"`
	ExternalImageID string  `json:"name"`
	Similarity      float64 `json:"similarity"`
}

// Face is one registry entry.
type Face struct {
	FaceID          string `json:"FaceId"`
	ExternalImageID string `json:"ExternalImageId"`
}

// IndexResult reports the outcome of adding a photo to the collection.
// Indexed is false when Rekognition found no face in the image; that is an
// expected outcome, not an error.
type IndexResult struct {
	FaceID  string
	Indexed bool
}

// SessionResult carries the raw liveness verdict from Rekognition.
// Confidence is on the service's 0-100 scale.
type SessionResult struct {
	SessionID  string
	Status     string
	Confidence float64
}

type api interface {
	IndexFaces(ctx context.Context, in *rekognition.IndexFacesInput, opts ...func(*rekognition.Options)) (*rekognition.IndexFacesOutput, error)
	ListFaces(ctx context.Context, in *rekognition.ListFacesInput, opts ...func(*rekognition.Options)) (*rekognition.ListFacesOutput, error)
	DeleteFaces(ctx context.Context, in *rekognition.DeleteFacesInput, opts ...func(*rekognition.Options)) (*rekognition.DeleteFacesOutput, error)
	SearchFacesByImage(ctx context.Context, in *rekognition.SearchFacesByImageInput, opts ...func(*rekognition.Options)) (*rekognition.SearchFacesByImageOutput, error)
	CompareFaces(ctx context.Context, in *rekognition.CompareFacesInput, opts ...func(*rekognition.Options)) (*rekognition.CompareFacesOutput, error)
	DetectFaces(ctx context.Context, in *rekognition.DetectFacesInput, opts ...func(*rekognition.Options)) (*rekognition.DetectFacesOutput, error)
	CreateFaceLivenessSession(ctx context.Context, in *rekognition.CreateFaceLivenessSessionInput, opts ...func(*rekognition.Options)) (*rekognition.CreateFaceLivenessSessionOutput, error)
	GetFaceLivenessSessionResults(ctx context.Context, in *rekognition.GetFaceLivenessSessionResultsInput, opts ...func(*rekognition.Options)) (*rekognition.GetFaceLivenessSessionResultsOutput, error)
}

// Client wraps the Rekognition collection used as the face registry.
type Client struct {
	api          api
	collectionID string
	bucket       string
	outputPrefix string
}

// New creates a registry client bound to one collection and bucket.
func New(api *rekognition.Client, collectionID, bucket, outputPrefix string) *Client {
	return &Client{api: api, collectionID: collectionID, bucket: bucket, outputPrefix: outputPrefix}
}

// IndexFace adds the photo already stored at s3Key to the collection under
// externalImageID. A zero-face photo yields Indexed=false without error.
func (c *Client) IndexFace(ctx context.Context, s3Key, externalImageID string) (IndexResult, error) {
	out, err := c.api.IndexFaces(ctx, &rekognition.IndexFacesInput{
		CollectionId: aws.String(c.collectionID),
		Image: &types.Image{
			S3Object: &types.S3Object{
				Bucket: aws.String(c.bucket),
				Name:   aws.String(s3Key),
			},
		},
		ExternalImageId:     aws.String(externalImageID),
		DetectionAttributes: []types.Attribute{types.AttributeDefault},
	})
	if err != nil {
		return IndexResult{}, fmt.Errorf("rekog: index face: %w", err)
	}
	if len(out.FaceRecords) == 0 {
		return IndexResult{Indexed: false}, nil
	}
	rec := out.FaceRecords[0]
	res := IndexResult{Indexed: true}
	if rec.Face != nil {
		res.FaceID = aws.ToString(rec.Face.FaceId)
	}
	return res, nil
}

// ListAllFaces pages through the whole collection until the continuation
// token is exhausted.
func (c *Client) ListAllFaces(ctx context.Context) ([]Face, error) {
	var faces []Face
	var nextToken *string
	for {
		out, err := c.api.ListFaces(ctx, &rekognition.ListFacesInput{
			CollectionId: aws.String(c.collectionID),
			MaxResults:   aws.Int32(100),
			NextToken:    nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("rekog: list faces: %w", err)
		}
		for _, f := range out.Faces {
			faces = append(faces, Face{
				FaceID:          aws.ToString(f.FaceId),
				ExternalImageID: aws.ToString(f.ExternalImageId),
			})
		}
		if out.NextToken == nil {
			return faces, nil
		}
		nextToken = out.NextToken
	}
}

// DeleteFace removes one face from the collection. Deleting an unknown face
// surfaces the service error.
func (c *Client) DeleteFace(ctx context.Context, faceID string) error {
	out, err := c.api.DeleteFaces(ctx, &rekognition.DeleteFacesInput{
		CollectionId: aws.String(c.collectionID),
		FaceIds:      []string{faceID},
	})
	if err != nil {
		return fmt.Errorf("rekog: delete face: %w", err)
	}
	if len(out.DeletedFaces) == 0 {
		return fmt.Errorf("rekog: face %s not found in collection", faceID)
	}
	return nil
}

// SearchByImage runs a 1:N search of the collection with the given threshold.
func (c *Client) SearchByImage(ctx context.Context, image []byte, threshold float32, maxFaces int32) ([]Match, error) {
	out, err := c.api.SearchFacesByImage(ctx, &rekognition.SearchFacesByImageInput{
		CollectionId:       aws.String(c.collectionID),
		Image:              &types.Image{Bytes: image},
		FaceMatchThreshold: aws.Float32(threshold),
		MaxFaces:           aws.Int32(maxFaces),
	})
	if err != nil {
		return nil, fmt.Errorf("rekog: search faces: %w", err)
	}
	matches := make([]Match, 0, len(out.FaceMatches))
	for _, m := range out.FaceMatches {
		match := Match{Similarity: float64(aws.ToFloat32(m.Similarity))}
		if m.Face != nil {
			match.FaceID = aws.ToString(m.Face.FaceId)
			match.ExternalImageID = aws.ToString(m.Face.ExternalImageId)
		}
		matches = append(matches, match)
	}
	return matches, nil
}

// CompareFaces runs a 1:1 comparison between two images.
func (c *Client) CompareFaces(ctx context.Context, source, target []byte, threshold float32) ([]Match, error) {
	out, err := c.api.CompareFaces(ctx, &rekognition.CompareFacesInput{
		SourceImage:         &types.Image{Bytes: source},
		TargetImage:         &types.Image{Bytes: target},
		SimilarityThreshold: aws.Float32(threshold),
	})
	if err != nil {
		return nil, fmt.Errorf("rekog: compare faces: %w", err)
	}
	matches := make([]Match, 0, len(out.FaceMatches))
	for _, m := range out.FaceMatches {
		matches = append(matches, Match{Similarity: float64(aws.ToFloat32(m.Similarity))})
	}
	return matches, nil
}

// CountFaces returns how many faces Rekognition detects in the image.
func (c *Client) CountFaces(ctx context.Context, image []byte) (int, error) {
	out, err := c.api.DetectFaces(ctx, &rekognition.DetectFacesInput{
		Image: &types.Image{Bytes: image},
	})
	if err != nil {
		return 0, fmt.Errorf("rekog: detect faces: %w", err)
	}
	return len(out.FaceDetails), nil
}

// CreateLivenessSession starts a liveness session whose reference frames are
// deposited at {outputPrefix}{sessionId}/ in the bucket. That prefix is the
// join key the orchestrator later lists.
func (c *Client) CreateLivenessSession(ctx context.Context) (string, error) {
	out, err := c.api.CreateFaceLivenessSession(ctx, &rekognition.CreateFaceLivenessSessionInput{
		ClientRequestToken: aws.String(uuid.NewString()),
		Settings: &types.CreateFaceLivenessSessionRequestSettings{
			OutputConfig: &types.LivenessOutputConfig{
				S3Bucket:    aws.String(c.bucket),
				S3KeyPrefix: aws.String(c.outputPrefix),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("rekog: create liveness session: %w", err)
	}
	return aws.ToString(out.SessionId), nil
}

// LivenessResults fetches the verdict for a session. Unknown or expired
// sessions surface the service's not-found error unchanged.
func (c *Client) LivenessResults(ctx context.Context, sessionID string) (SessionResult, error) {
	out, err := c.api.GetFaceLivenessSessionResults(ctx, &rekognition.GetFaceLivenessSessionResultsInput{
		SessionId: aws.String(sessionID),
	})
	if err != nil {
		return SessionResult{}, fmt.Errorf("rekog: liveness results: %w", err)
	}
	return SessionResult{
		SessionID:  aws.ToString(out.SessionId),
		Status:     string(out.Status),
		Confidence: float64(aws.ToFloat32(out.Confidence)),
	}, nil
}
