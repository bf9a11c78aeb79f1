package beat

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// cronParser — парсер расписаний: пятипольный cron и дескрипторы
// (@hourly, @daily, @every 10m).
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseSchedule разбирает расписание записи.
func ParseSchedule(spec string) (cron.Schedule, error) {
	schedule, err := cronParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidSchedule, spec, err)
	}
	return schedule, nil
}
