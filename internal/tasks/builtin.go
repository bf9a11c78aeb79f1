package tasks

// Имена задач, которые manager вызывает сам.
const (
	StorageCreate = "storagedriver.create"
	StorageDelete = "storagedriver.delete"

	VMDeploy  = "vmdriver.deploy"
	VMDestroy = "vmdriver.destroy"
	VMResume  = "vmdriver.resume"

	NetCreate  = "netdriver.create"
	NetDestroy = "netdriver.destroy"

	ManagerDeploy           = "manager.deploy"
	ManagerDestroy          = "manager.destroy"
	ManagerGarbageCollector = "manager.garbage_collector"
)

func def(name string, sub Subsystem, tier Tier, retries int, minArgs int, args ...string) Def {
	return Def{
		Name:       name,
		Subsystem:  sub,
		Tier:       tier,
		Args:       args,
		MinArgs:    minArgs,
		MaxRetries: retries,
	}
}

// Default возвращает каталог задач CIRCLE.
//
// Драйверы (storagedriver, vmdriver, netdriver, agent, firewall) и
// one.tasks обрабатываются воркерами на узлах; manager.* — этим модулем.
func Default() *Catalog {
	c := NewCatalog()

	// storagedriver — операции с образами дисков на datastore.
	c.MustRegister(
		def("storagedriver.list", SubsystemStorage, TierFast, 0, 1, "dir"),
		def(StorageCreate, SubsystemStorage, TierFast, 0, 1, "disk_desc"),
		def(StorageDelete, SubsystemStorage, TierFast, 0, 1, "disk_desc"),
		def("storagedriver.snapshot", SubsystemStorage, TierFast, 0, 1, "disk_desc"),
		def("storagedriver.merge", SubsystemStorage, TierFast, 0, 2, "src_disk_desc", "dst_disk_desc"),
		def("storagedriver.get", SubsystemStorage, TierFast, 0, 1, "json_data"),
		def("storagedriver.download", SubsystemStorage, TierFast, 0, 2, "disk_desc", "url"),
		def("storagedriver.get_storage_stat", SubsystemStorage, TierFast, 0, 1, "path"),
		def("storagedriver.move_to_trash", SubsystemStorage, TierSlow, 2, 2, "datastore_path", "disk_path"),
		def("storagedriver.recover_from_trash", SubsystemStorage, TierSlow, 2, 2, "datastore_path", "disk_path"),
		def("storagedriver.make_free_space", SubsystemStorage, TierSlow, 2, 1, "path", "deletable_disks", "percent"),
		def("storagedriver.list_files", SubsystemStorage, TierSlow, 2, 1, "datastore_path"),
	)

	// vmdriver — управление доменами гипервизора.
	c.MustRegister(
		def(VMDeploy, SubsystemVM, TierFast, 0, 1, "vm_desc"),
		def(VMDestroy, SubsystemVM, TierFast, 0, 1, "vm_name"),
		def(VMResume, SubsystemVM, TierFast, 0, 1, "vm_name"),
		def("vmdriver.sleep", SubsystemVM, TierFast, 0, 2, "vm_name", "path"),
		def("vmdriver.wake_up", SubsystemVM, TierFast, 0, 2, "vm_name", "path"),
		def("vmdriver.reboot", SubsystemVM, TierFast, 0, 1, "vm_name"),
		def("vmdriver.reset", SubsystemVM, TierFast, 0, 1, "vm_name"),
		def("vmdriver.shutdown", SubsystemVM, TierFast, 0, 1, "vm_name"),
		def("vmdriver.migrate", SubsystemVM, TierFast, 0, 2, "vm_name", "host", "live"),
		def("vmdriver.screenshot", SubsystemVM, TierFast, 0, 1, "vm_name"),
		def("vmdriver.domain_info", SubsystemVM, TierFast, 0, 1, "vm_name"),
		def("vmdriver.attach_disk", SubsystemVM, TierFast, 0, 2, "vm_name", "disk_desc"),
		def("vmdriver.detach_disk", SubsystemVM, TierFast, 0, 2, "vm_name", "disk_desc"),
		def("vmdriver.list_domains", SubsystemVM, TierSlow, 1, 0),
		def("vmdriver.get_node_metrics", SubsystemVM, TierSlow, 1, 0),
	)

	// netdriver — виртуальные интерфейсы на узле.
	c.MustRegister(
		def(NetCreate, SubsystemNet, TierFast, 0, 1, "net_desc"),
		def(NetDestroy, SubsystemNet, TierFast, 0, 1, "net_desc"),
	)

	// agent — гостевой агент внутри VM.
	c.MustRegister(
		def("agent.change_password", SubsystemAgent, TierFast, 0, 2, "vm", "password"),
		def("agent.restart", SubsystemAgent, TierFast, 0, 1, "vm"),
		def("agent.set_hostname", SubsystemAgent, TierFast, 0, 2, "vm", "hostname"),
		def("agent.set_time", SubsystemAgent, TierFast, 0, 2, "vm", "time"),
		def("agent.mount_store", SubsystemAgent, TierFast, 0, 4, "vm", "host", "username", "password"),
		def("agent.cleanup", SubsystemAgent, TierFast, 0, 1, "vm"),
		def("agent.start_access_server", SubsystemAgent, TierFast, 0, 1, "vm"),
		def("agent.update", SubsystemAgent, TierFast, 0, 2, "vm", "data"),
	)

	// firewall — конфигурация шлюза.
	c.MustRegister(
		def("firewall.reload_firewall", SubsystemFirewall, TierFast, 0, 1, "data4", "data6"),
		def("firewall.reload_dns", SubsystemFirewall, TierFast, 0, 1, "data"),
		def("firewall.reload_dhcp", SubsystemFirewall, TierFast, 0, 1, "data"),
		def("firewall.reload_blacklist", SubsystemFirewall, TierFast, 0, 1, "data"),
		def("firewall.get_dhcp_clients", SubsystemFirewall, TierFast, 0, 0),
	)

	// one.tasks — устаревший облачный контроллер.
	c.MustRegister(
		def("one.tasks.CreateInstanceTask", SubsystemOne, TierFast, 0, 1, "template"),
		def("one.tasks.DeleteInstanceTask", SubsystemOne, TierFast, 0, 1, "one_id"),
		def("one.tasks.ChangeInstanceStateTask", SubsystemOne, TierFast, 0, 2, "one_id", "new_state"),
		def("one.tasks.UpdateInstanceTask", SubsystemOne, TierFast, 0, 2, "one_id", "template"),
	)

	// manager — обработчики этого модуля.
	c.MustRegister(
		def(ManagerDeploy, SubsystemManager, TierFast, 2, 1, "instance_id"),
		def(ManagerDestroy, SubsystemManager, TierFast, 2, 1, "instance_id"),
		def(ManagerGarbageCollector, SubsystemManager, TierSlow, 0, 0),
	)

	return c
}
