package rekognition

// Config holds configuration for the AWS Rekognition liveness checker
type Config struct {
	// Region is the AWS region where Rekognition service will be used (e.g., "us-east-1")
	Region string

	// MaxPoseDegrees bounds yaw and pitch for a face to count as facing the camera
	MaxPoseDegrees float64

	// MinQuality is the minimum combined brightness/sharpness score (0-1)
	MinQuality float64
}

// DefaultConfig returns a Config with default values
func DefaultConfig() Config {
	return Config{
		Region:         "us-east-1",
		MaxPoseDegrees: 25,
		MinQuality:     0.5,
	}
}
