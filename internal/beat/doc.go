// Package beat ставит периодические задачи в очередь.
//
// Beat хранит статический список записей (имя, задача, хост, аргументы,
// расписание), на каждом тике отправляет наступившие через dispatch
// и пересчитывает время следующего запуска.
//
// Реплик beat может быть несколько: тикает только та, что держит
// advisory lock в PostgreSQL (см. PGLeader).
package beat
