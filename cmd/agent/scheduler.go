package agent

import (
	"github.com/spf13/cobra"
)

func initSchedulerFlags(root *cobra.Command) {
	f := root.PersistentFlags()

	f.Duration("scheduler.poll_interval", defaultCfg.Scheduler.PollInterval, "-> Dispatcher poll interval | 调度轮询间隔")
	f.String("database.db_path", defaultCfg.Database.DBPath, "-> SQLite database file | 数据库文件路径")
	f.String("report.output_dir", defaultCfg.Report.OutputDir, "-> Directory for plot and table artifacts | 报表输出目录")
	f.Bool("broker.enable", defaultCfg.Broker.Enable, "-> Publish stored records to AMQP | 启用消息发布")
}
