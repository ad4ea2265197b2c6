package inference

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	rekognitiontypes "github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/disintegration/imaging"

	"github.com/johnrirwin/orbitsafe/internal/models"
)

// DefaultLabelMap maps Rekognition label names onto the equipment taxonomy.
var DefaultLabelMap = map[string]string{
	"Fire Extinguisher": "FireExtinguisher",
	"First Aid":         "FirstAidBox",
	"First Aid Kit":     "FirstAidBox",
	"Fire Alarm":        "FireAlarm",
	"Smoke Detector":    "FireAlarm",
	"Oxygen Tank":       "OxygenTank",
	"Cylinder":          "OxygenTank",
	"Gas Cylinder":      "NitrogenTank",
	"Telephone":         "EmergencyPhone",
	"Phone":             "EmergencyPhone",
	"Electrical Device": "SafetySwitchPanel",
	"Switch":            "SafetySwitchPanel",
}

type labelsAPI interface {
	DetectLabels(ctx context.Context, params *rekognition.DetectLabelsInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectLabelsOutput, error)
}

// RekognitionDetector calls AWS Rekognition DetectLabels with byte payloads
// (no S3 dependency). Only labels with instance bounding boxes are returned.
type RekognitionDetector struct {
	client        labelsAPI
	labelMap      map[string]string
	minConfidence float32
}

// NewRekognitionDetector creates a detector that uses ambient AWS credentials/profile.
func NewRekognitionDetector(ctx context.Context, region string, labelMap map[string]string) (*RekognitionDetector, error) {
	loadOptions := []func(*awsconfig.LoadOptions) error{}
	trimmedRegion := strings.TrimSpace(region)
	if trimmedRegion != "" {
		loadOptions = append(loadOptions, awsconfig.WithRegion(trimmedRegion))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return newRekognitionDetector(rekognition.NewFromConfig(cfg), labelMap), nil
}

func newRekognitionDetector(client labelsAPI, labelMap map[string]string) *RekognitionDetector {
	if labelMap == nil {
		labelMap = DefaultLabelMap
	}
	return &RekognitionDetector{
		client:        client,
		labelMap:      labelMap,
		minConfidence: 10,
	}
}

func (d *RekognitionDetector) Name() string { return "rekognition" }

// Detect converts relative instance boxes to pixel corners using the decoded
// image size.
func (d *RekognitionDetector) Detect(ctx context.Context, upload models.Upload) ([]models.RawDetection, error) {
	if len(upload.Data) == 0 {
		return nil, fmt.Errorf("image bytes are required")
	}

	img, err := imaging.Decode(bytes.NewReader(upload.Data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	width := float64(img.Bounds().Dx())
	height := float64(img.Bounds().Dy())

	output, err := d.client.DetectLabels(ctx, &rekognition.DetectLabelsInput{
		Image: &rekognitiontypes.Image{
			Bytes: upload.Data,
		},
		MinConfidence: aws.Float32(d.minConfidence),
	})
	if err != nil {
		return nil, fmt.Errorf("rekognition detect labels failed: %w", err)
	}

	raw := make([]models.RawDetection, 0)
	for _, label := range output.Labels {
		name, ok := d.labelMap[aws.ToString(label.Name)]
		if !ok {
			continue
		}
		for _, inst := range label.Instances {
			if inst.BoundingBox == nil {
				continue
			}
			confidence := aws.ToFloat32(inst.Confidence)
			if inst.Confidence == nil {
				confidence = aws.ToFloat32(label.Confidence)
			}

			box := inst.BoundingBox
			left := float64(aws.ToFloat32(box.Left)) * width
			top := float64(aws.ToFloat32(box.Top)) * height
			right := left + float64(aws.ToFloat32(box.Width))*width
			bottom := top + float64(aws.ToFloat32(box.Height))*height

			raw = append(raw, models.RawDetection{
				ClassName:  name,
				Confidence: float64(confidence) / 100,
				Box:        []interface{}{left, top, right, bottom},
			})
		}
	}

	return raw, nil
}
