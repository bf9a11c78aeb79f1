package worker

import "fmt"

// ArgString возвращает i-й позиционный аргумент как строку.
// Ошибка помечена Permanent: повтор с теми же аргументами не поможет.
func ArgString(args []any, i int) (string, error) {
	if i >= len(args) {
		return "", Permanent(fmt.Errorf("%w: missing argument %d", ErrBadArgument, i))
	}
	s, ok := args[i].(string)
	if !ok {
		return "", Permanent(fmt.Errorf("%w: argument %d is %T, want string", ErrBadArgument, i, args[i]))
	}
	return s, nil
}
