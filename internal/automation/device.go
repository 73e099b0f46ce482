package automation

import (
	"context"

	"smartgateway/internal/models"
)

// StatusReader reads live device status
type StatusReader interface {
	GetDeviceStatus(ctx context.Context, deviceID string) (models.DeviceStatus, error)
}

// DeviceController sends commands and runs scenes
type DeviceController interface {
	SendCommand(ctx context.Context, deviceID, command string, parameter any) (*models.CommandResult, error)
	ExecuteScene(ctx context.Context, sceneID string) (*models.CommandResult, error)
}

// DeviceService is the full device-control capability the gateway talks to
type DeviceService interface {
	StatusReader
	DeviceController
	GetDevices(ctx context.Context) (*models.DeviceList, error)
	GetScenes(ctx context.Context) ([]models.Scene, error)
}
