// Package calldump разбирает текстовый отчет о завершенном звонке (dump).
//
// Отчет не имеет объявленной грамматики: структура задается только отступами.
// Разбор выполняется в два шага:
//
//	root, err := calldump.Parse(report)   // дерево узлов по отступам
//	stats, err := calldump.Extract(root, calldump.DefaultLabels())
//
// или одной функцией ParseStats. Шаг отступа определяется автоматически
// один раз на отчет, дерево строится за один проход со стеком открытых узлов.
//
// Пример отчета:
//
//	call_id: 4f1c2a@10.0.0.5
//	state: DISCONNECTED
//	media:
//	    0:
//	        rx:
//	            total_packet_cnt: 500
//	            total_packet_size: 80.0KB
//	        tx:
//	            total_packet_cnt: 498
//	            total_packet_size: 79.7KB
package calldump
