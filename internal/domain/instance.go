package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// InstanceSpec — описание VM, которую нужно развернуть.
//
// Сами модели Instance/Disk живут в веб-части CIRCLE; сюда приходит
// только то, что нужно драйверам на узле.
type InstanceSpec struct {
	// ID — идентификатор instance.
	ID uuid.UUID `json:"id"`

	// Name — имя домена на гипервизоре (например, "cloud-42").
	Name string `json:"name" validate:"required,max=64"`

	// Memory — объём памяти в MiB.
	Memory int `json:"memory" validate:"required,gt=0"`

	// VCPUs — количество виртуальных процессоров.
	VCPUs int `json:"vcpus" validate:"required,gt=0"`

	// Node — узел, на который VM закреплена (пусто — выбирает планировщик).
	Node string `json:"node,omitempty"`

	// Disks — диски VM.
	Disks []DiskSpec `json:"disks" validate:"dive"`

	// Interfaces — сетевые интерфейсы VM.
	Interfaces []InterfaceSpec `json:"interfaces" validate:"dive"`

	// Context — данные для контекстного диска (hostname, ssh-ключи и т.д.).
	// Nil — контекстный диск не создаётся.
	Context map[string]any `json:"context,omitempty"`
}

// DiskSpec — описание диска.
type DiskSpec struct {
	// ID — идентификатор диска (ключ прогресса при повторной доставке).
	ID string `json:"id" validate:"required"`

	// Name — имя файла образа.
	Name string `json:"name" validate:"required"`

	// Type — формат: qcow2-norm, qcow2-snap, raw-ro, raw-rw, iso.
	Type string `json:"type" validate:"required,oneof=qcow2-norm qcow2-snap raw-ro raw-rw iso"`

	// Size — размер в байтах (для пустых дисков).
	Size int64 `json:"size,omitempty" validate:"gte=0"`

	// BaseName — базовый образ для snapshot-дисков.
	BaseName string `json:"base_name,omitempty"`

	// Datastore — путь к хранилищу на узле.
	Datastore string `json:"datastore" validate:"required"`

	// Host — хост хранилища (пусто — узел VM).
	Host string `json:"host,omitempty"`
}

// InterfaceSpec — описание сетевого интерфейса.
type InterfaceSpec struct {
	// MAC — MAC-адрес.
	MAC string `json:"mac" validate:"required,mac"`

	// VLAN — номер VLAN.
	VLAN int `json:"vlan" validate:"gte=0,lte=4094"`

	// Bridge — bridge на узле.
	Bridge string `json:"bridge,omitempty"`

	// Managed — адрес выдаёт firewall (DHCP).
	Managed bool `json:"managed"`
}

// ContextDiskID — ID контекстного диска в прогрессе развёртывания.
const ContextDiskID = "context"

// DiskDesc возвращает описание диска для storagedriver.
func (d DiskSpec) DiskDesc() map[string]any {
	return map[string]any{
		"name":      d.Name,
		"dir":       d.Datastore,
		"format":    diskFormat(d.Type),
		"type":      diskKind(d.Type),
		"size":      d.Size,
		"base_name": nilIfEmpty(d.BaseName),
	}
}

// ContextDiskDesc возвращает описание контекстного диска.
func (s InstanceSpec) ContextDiskDesc(datastore string) map[string]any {
	return map[string]any{
		"name":    s.Name + "-context",
		"dir":     datastore,
		"format":  "iso",
		"type":    "context",
		"size":    0,
		"context": s.Context,
	}
}

// VMDesc возвращает описание домена для vmdriver.deploy.
func (s InstanceSpec) VMDesc() map[string]any {
	disks := make([]map[string]any, 0, len(s.Disks))
	for _, d := range s.Disks {
		disks = append(disks, map[string]any{
			"source":      fmt.Sprintf("%s/%s", d.Datastore, d.Name),
			"driver_type": diskFormat(d.Type),
		})
	}

	nics := make([]map[string]any, 0, len(s.Interfaces))
	for _, n := range s.Interfaces {
		nics = append(nics, n.NetDesc())
	}

	return map[string]any{
		"name":         s.Name,
		"vcpu":         s.VCPUs,
		"memory":       s.Memory * 1024, // драйвер ждёт KiB
		"memory_max":   s.Memory * 1024,
		"disk_list":    disks,
		"network_list": nics,
		"boot_menu":    false,
	}
}

// NetDesc возвращает описание интерфейса для netdriver.
func (n InterfaceSpec) NetDesc() map[string]any {
	return map[string]any{
		"mac":     n.MAC,
		"vlan":    n.VLAN,
		"bridge":  n.Bridge,
		"managed": n.Managed,
	}
}

func diskFormat(t string) string {
	switch t {
	case "iso":
		return "iso"
	case "raw-ro", "raw-rw":
		return "raw"
	default:
		return "qcow2"
	}
}

func diskKind(t string) string {
	switch t {
	case "qcow2-snap":
		return "snapshot"
	case "raw-ro", "iso":
		return "readonly"
	default:
		return "normal"
	}
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
