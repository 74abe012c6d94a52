package detect

import (
	"fmt"
	"image"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"parkwatch-service/internal/domain/violation"
)

// YOLOConfig points the detector at its network files and thresholds.
type YOLOConfig struct {
	WeightsPath    string
	NetConfigPath  string
	ClassNamesPath string
	InputSize      int
	Confidence     float64
	IOU            float64
}

// YOLODetector runs a YOLO network via the gocv DNN module and stitches
// per-frame boxes into tracks with a greedy IoU matcher.
type YOLODetector struct {
	net        gocv.Net
	classNames []string
	inputSize  int
	confidence float32
	iou        float32

	assigner *trackAssigner
	log      zerolog.Logger
}

// NewYOLODetector loads the network and class vocabulary.
func NewYOLODetector(cfg YOLOConfig, log zerolog.Logger) (*YOLODetector, error) {
	namesData, err := os.ReadFile(cfg.ClassNamesPath)
	if err != nil {
		return nil, fmt.Errorf("read class names: %w", err)
	}
	var classNames []string
	for _, line := range strings.Split(string(namesData), "\n") {
		if name := strings.TrimSpace(line); name != "" {
			classNames = append(classNames, name)
		}
	}
	if len(classNames) == 0 {
		return nil, fmt.Errorf("class names file %s is empty", cfg.ClassNamesPath)
	}

	net := gocv.ReadNet(cfg.WeightsPath, cfg.NetConfigPath)
	if net.Empty() {
		return nil, fmt.Errorf("load network from %s", cfg.WeightsPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	inputSize := cfg.InputSize
	if inputSize <= 0 {
		inputSize = 640
	}

	d := &YOLODetector{
		net:        net,
		classNames: classNames,
		inputSize:  inputSize,
		confidence: float32(cfg.Confidence),
		iou:        float32(cfg.IOU),
		assigner:   newTrackAssigner(),
		log:        log.With().Str("component", "detector").Logger(),
	}
	d.log.Info().
		Int("classes", len(classNames)).
		Int("input_size", inputSize).
		Msg("yolo detector initialized")
	return d, nil
}

// Detect runs inference on the frame and returns tracked detections.
func (d *YOLODetector) Detect(frame gocv.Mat) ([]violation.Detection, error) {
	blob := gocv.BlobFromImage(frame, 1.0/255.0,
		image.Pt(d.inputSize, d.inputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	boxes, scores, classIDs := d.parseOutput(output, frame.Cols(), frame.Rows())

	// Non-maximum suppression collapses overlapping candidates before
	// track assignment sees them.
	indices := gocv.NMSBoxes(boxes, scores, d.confidence, d.iou)

	dets := make([]violation.Detection, 0, len(indices))
	for _, idx := range indices {
		r := boxes[idx]
		dets = append(dets, violation.Detection{
			ClassLabel: d.classNames[classIDs[idx]],
			Confidence: float64(scores[idx]),
			Box: violation.BoundingBox{
				X1: r.Min.X, Y1: r.Min.Y, X2: r.Max.X, Y2: r.Max.Y,
			},
		})
	}

	d.assigner.assign(dets)
	return dets, nil
}

// parseOutput decodes YOLO rows (cx, cy, w, h, objectness, class scores)
// into frame-space rectangles.
func (d *YOLODetector) parseOutput(output gocv.Mat, frameW, frameH int) ([]image.Rectangle, []float32, []int) {
	var (
		boxes    []image.Rectangle
		scores   []float32
		classIDs []int
	)

	sx := float32(frameW) / float32(d.inputSize)
	sy := float32(frameH) / float32(d.inputSize)

	for i := 0; i < output.Rows(); i++ {
		row := output.RowRange(i, i+1)
		data := row.Clone()
		row.Close()

		objectness := data.GetFloatAt(0, 4)
		if objectness < d.confidence {
			data.Close()
			continue
		}

		classScores := data.ColRange(5, data.Cols())
		_, maxVal, _, maxLoc := gocv.MinMaxLoc(classScores)
		classScores.Close()

		score := float32(maxVal) * objectness
		classID := maxLoc.X
		if score < d.confidence || classID >= len(d.classNames) {
			data.Close()
			continue
		}

		cx := data.GetFloatAt(0, 0) * float32(d.inputSize) * sx
		cy := data.GetFloatAt(0, 1) * float32(d.inputSize) * sy
		w := data.GetFloatAt(0, 2) * float32(d.inputSize) * sx
		h := data.GetFloatAt(0, 3) * float32(d.inputSize) * sy
		data.Close()

		left := int(cx - w/2)
		top := int(cy - h/2)
		boxes = append(boxes, image.Rect(left, top, left+int(w), top+int(h)))
		scores = append(scores, score)
		classIDs = append(classIDs, classID)
	}

	return boxes, scores, classIDs
}

// Close releases the network.
func (d *YOLODetector) Close() error {
	return d.net.Close()
}
