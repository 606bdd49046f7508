package actuator

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// SysfsPin drives a GPIO line through the kernel's sysfs interface.
type SysfsPin struct {
	base string
	gpio int
}

// OpenSysfsPin exports the GPIO line and configures it as an output held
// low.
func OpenSysfsPin(gpio int) (*SysfsPin, error) {
	return openSysfsPin("/sys/class/gpio", gpio)
}

func openSysfsPin(base string, gpio int) (*SysfsPin, error) {
	p := &SysfsPin{base: base, gpio: gpio}
	if _, err := os.Stat(p.path("")); err != nil {
		if err := os.WriteFile(filepath.Join(base, "export"), []byte(strconv.Itoa(gpio)), 0o644); err != nil {
			return nil, fmt.Errorf("cannot export gpio %v: %w", gpio, err)
		}
	}
	if err := os.WriteFile(p.path("direction"), []byte("out"), 0o644); err != nil {
		return nil, fmt.Errorf("cannot set gpio %v direction: %w", gpio, err)
	}
	if err := p.Set(false); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *SysfsPin) path(file string) string {
	return filepath.Join(p.base, "gpio"+strconv.Itoa(p.gpio), file)
}

func (p *SysfsPin) Set(active bool) error {
	value := "0"
	if active {
		value = "1"
	}
	if err := os.WriteFile(p.path("value"), []byte(value), 0o644); err != nil {
		return fmt.Errorf("cannot write gpio %v value: %w", p.gpio, err)
	}
	return nil
}
