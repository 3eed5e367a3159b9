// Package ports defines the interfaces that connect the application
// layer to infrastructure adapters.
//
// # Port Interfaces
//
//   - [DeviceSession]: polled access to the detector front end
//   - [Configurer], [Injector]: optional device capabilities
//   - [FrameWriter]: append-only persistence of accepted frames
//   - [StatusRepository]: persists and loads run status
//   - [Logger]: structured logging abstraction
//
// The application packages depend only on these interfaces. Adapters under
// internal/adapters implement them with serial ports, files, zerolog and so on.
package ports
